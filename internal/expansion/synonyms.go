package expansion

// defaultSynonyms maps common research abbreviations to their expansions.
var defaultSynonyms = map[string]string{
	"ai":        "artificial intelligence",
	"ml":        "machine learning",
	"dl":        "deep learning",
	"nlp":       "natural language processing",
	"llm":       "large language model",
	"llms":      "large language models",
	"cv":        "computer vision",
	"rl":        "reinforcement learning",
	"cnn":       "convolutional neural network",
	"rnn":       "recurrent neural network",
	"gnn":       "graph neural network",
	"gan":       "generative adversarial network",
	"rag":       "retrieval augmented generation",
	"asr":       "automatic speech recognition",
	"crispr":    "clustered regularly interspaced short palindromic repeats",
	"mri":       "magnetic resonance imaging",
	"ehr":       "electronic health records",
	"covid-19":  "sars-cov-2",
	"scrna-seq": "single-cell rna sequencing",
	"gwas":      "genome-wide association study",
}
