package nn

// Network coefficients of the basic version (11 inputs, 3 hidden
// nodes), ITU-R BS.1387-1 table 22.
var basicNetwork = Network{
	scaleMin: []float64{
		393.916656, 361.965332, -24.045116, 1.110661, -0.206623, 0.074318,
		1.113683, 0.950345, 0.029985, 0.000101, 0,
	},
	scaleMax: []float64{
		921, 881.131226, 16.212030, 107.137772, 2.886017, 13.933351,
		63.257874, 1145.018555, 14.819740, 1, 1,
	},
	inputWeights: [][]float64{
		{-0.502657, 0.436333, 1.219602},
		{4.307481, 3.246017, 1.123743},
		{4.984241, -2.211189, -0.192096},
		{0.051056, -1.762424, 4.331315},
		{2.321580, 1.789971, 0.754560},
		{-5.303901, -3.452257, -10.814982},
		{2.730991, -6.111805, 1.519223},
		{0.624950, -1.331523, -5.955151},
		{3.102889, 0.871260, -5.922878},
		{-1.051468, -0.939882, -0.142913},
		{-1.804679, -0.503610, -0.620456},
	},
	inputBias:    []float64{-2.518254, 0.654841, -2.207228},
	outputWeight: []float64{-3.817048, 4.107138, 4.629582},
	outputBias:   -0.307594,
}

// Network coefficients of the advanced version (5 inputs, 5 hidden
// nodes), ITU-R BS.1387-1 table 23.
var advancedNetwork = Network{
	scaleMin: []float64{
		13.298751, 0.041073, -25.018791, 0.061560, 0.024523,
	},
	scaleMax: []float64{
		2166.5, 13.24326, 13.46708, 10.226771, 14.224874,
	},
	inputWeights: [][]float64{
		{21.211773, -39.013052, 1.717022, -74.066308, 98.213679},
		{-8.981803, 19.956049, 0.935998, 64.297873, -17.177943},
		{1.633830, -2.877505, -7.442935, 55.721497, -35.707038},
		{6.103821, 19.587435, -0.240284, -65.086936, 13.013232},
		{11.556344, 3.892028, 9.720441, -11.031250, 62.101957},
	},
	inputBias:    []float64{1.330890, 2.686103, 2.096598, -1.327851, 3.087055},
	outputWeight: []float64{-4.696996, -3.289959, 7.004782, 6.651897, 4.009144},
	outputBias:   -1.360308,
}
