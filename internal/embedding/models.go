package embedding

var knownDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"all-MiniLM-L6-v2":                       384,
	"all-minilm":                             384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"nomic-embed-text":                       768,
	"mxbai-embed-large":                      1024,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// ModelDimensions returns the output dimension of a known model name.
func ModelDimensions(model string) (int, bool) {
	d, ok := knownDimensions[model]
	return d, ok
}
