// Package graphql exposes a read-only browse API over the document
// store for the emulator UI: look up a document, list a collection,
// inspect engine stats.
package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/mnohosten/flamestore/pkg/store"
)

// Schema builds the query-only schema over the store
func Schema(s *store.Store) (graphql.Schema, error) {
	documentType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Document",
		Description: "A stored document with its wire-format fields",
		Fields: graphql.Fields{
			"name": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "Canonical document name",
			},
			"fields": &graphql.Field{
				Type:        JSONScalar,
				Description: "Field values in the REST wire encoding",
			},
			"createTime": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"updateTime": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Stats",
		Description: "Engine counters",
		Fields: graphql.Fields{
			"documents": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Documents currently stored",
			},
			"activeTransactions": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Transactions not yet committed, rolled back or expired",
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"document": &graphql.Field{
				Type:        documentType,
				Description: "Fetch one document by its canonical name, or null",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
				},
				Resolve: resolveDocument(s),
			},
			"collection": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(documentType)),
				Description: "List the documents directly inside a collection, by its full name",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
					"limit": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 100,
					},
				},
				Resolve: resolveCollection(s),
			},
			"stats": &graphql.Field{
				Type:    graphql.NewNonNull(statsType),
				Resolve: resolveStats(s),
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("build schema: %w", err)
	}
	return schema, nil
}
