// Command peaq measures the perceptual quality of a degraded audio
// signal against its reference after ITU-R BS.1387-1.
//
// Usage:
//
//	peaq [flags] reference.wav test.wav
//
// Both files must be 48 kHz WAV files with matching channel counts; the
// signals are assumed to be time and level aligned.
//
// Examples:
//
//	peaq ref.wav codec.wav
//	peaq -advanced -level 85 ref.wav codec.wav
//	peaq -movs ref.wav codec.wav
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/youpy/go-wav"

	"github.com/cwbudde/algo-peaq/earmodel"
	"github.com/cwbudde/algo-peaq/peaq"
)

const blockSamples = 32768

func main() {
	advanced := flag.Bool("advanced", false, "use the advanced version (filterbank ear model)")
	levelDB := flag.Float64("level", 92, "assumed playback level of a full-scale sine in dB SPL")
	movs := flag.Bool("movs", false, "print the individual model output variables")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: peaq [flags] reference.wav test.wav\n\n")
		fmt.Fprintf(os.Stderr, "Measures perceptual audio quality after ITU-R BS.1387-1 (PEAQ).\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Arg(1), *advanced, *levelDB, *movs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(refPath, testPath string, advanced bool, levelDB float64, printMOVs bool) error {
	ref, err := readWAV(refPath)
	if err != nil {
		return fmt.Errorf("%s: %w", refPath, err)
	}

	test, err := readWAV(testPath)
	if err != nil {
		return fmt.Errorf("%s: %w", testPath, err)
	}

	if len(ref) != len(test) {
		return fmt.Errorf("%s has %d channels, %s has %d", refPath, len(ref), testPath, len(test))
	}

	meter, err := peaq.NewMeter(
		peaq.WithChannels(len(ref)),
		peaq.WithAdvanced(advanced),
		peaq.WithPlaybackLevel(levelDB),
	)
	if err != nil {
		return err
	}

	n := min(len(ref[0]), len(test[0]))
	for pos := 0; pos < n; pos += blockSamples {
		end := min(pos+blockSamples, n)

		refBlock := make([][]float64, len(ref))
		testBlock := make([][]float64, len(test))
		for ch := range ref {
			refBlock[ch] = ref[ch][pos:end]
			testBlock[ch] = test[ch][pos:end]
		}

		if err := meter.ProcessBlock(refBlock, testBlock); err != nil {
			return err
		}
	}

	meter.Flush()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Objective Difference Grade\t%.3f\n", meter.ODG())
	fmt.Fprintf(tw, "Distortion Index\t%.3f\n", meter.DistortionIndex())

	if printMOVs {
		names := meter.MOVNames()
		for i, v := range meter.MOVs() {
			fmt.Fprintf(tw, "%s\t%.6f\n", names[i], v)
		}
	}

	return tw.Flush()
}

// readWAV loads a 48 kHz WAV file into per-channel full-scale samples.
func readWAV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := wav.NewReader(f)

	format, err := r.Format()
	if err != nil {
		return nil, err
	}

	if format.SampleRate != uint32(earmodel.SampleRate) {
		return nil, fmt.Errorf("sample rate %d not supported (want %d)", format.SampleRate, int(earmodel.SampleRate))
	}

	result := make([][]float64, format.NumChannels)

	for {
		samples, err := r.ReadSamples(blockSamples)
		for _, sample := range samples {
			for ch := range result {
				result[ch] = append(result[ch], r.FloatValue(sample, uint(ch)))
			}
		}

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}
	}

	if len(result) == 0 || len(result[0]) == 0 {
		return nil, fmt.Errorf("no samples")
	}

	return result, nil
}
