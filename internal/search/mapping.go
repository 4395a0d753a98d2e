package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping maps relationship documents.
//
// Endpoint names are indexed twice: verbatim (keyword) for exact and prefix
// matches, and split into words (simple analyzer) for fuzzy matches.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	keywordField := func(store bool) *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = store
		return f
	}

	docMapping.AddFieldMappingsAt("antecedent", keywordField(true))
	docMapping.AddFieldMappingsAt("consequent", keywordField(true))
	docMapping.AddFieldMappingsAt("kind", keywordField(true))
	docMapping.AddFieldMappingsAt("status", keywordField(true))

	wordsField := bleve.NewTextFieldMapping()
	wordsField.Analyzer = simple.Name
	docMapping.AddFieldMappingsAt("words", wordsField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
