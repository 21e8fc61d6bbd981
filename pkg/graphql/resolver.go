package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/mnohosten/flamestore/pkg/docpath"
	"github.com/mnohosten/flamestore/pkg/store"
	"github.com/mnohosten/flamestore/pkg/value"
)

// docNode is the resolver-facing view of one document
type docNode struct {
	Name       string                  `json:"name"`
	Fields     map[string]*value.Value `json:"fields"`
	CreateTime string                  `json:"createTime"`
	UpdateTime string                  `json:"updateTime"`
}

func toNode(doc *store.Document) *docNode {
	wd := doc.ToWire(nil)
	return &docNode{
		Name:       wd.Name,
		Fields:     wd.Fields,
		CreateTime: wd.CreateTime,
		UpdateTime: wd.UpdateTime,
	}
}

func resolveDocument(s *store.Store) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		name, _ := p.Args["name"].(string)
		if _, err := docpath.Parse(name); err != nil {
			return nil, fmt.Errorf("invalid document name %q", name)
		}
		doc, ok := s.Get(name)
		if !ok {
			return nil, nil
		}
		return toNode(doc), nil
	}
}

func resolveCollection(s *store.Store) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		name, _ := p.Args["name"].(string)
		limit, _ := p.Args["limit"].(int)
		if limit <= 0 {
			limit = 100
		}
		docs := s.ListCollection(name)
		if len(docs) > limit {
			docs = docs[:limit]
		}
		nodes := make([]*docNode, 0, len(docs))
		for _, doc := range docs {
			nodes = append(nodes, toNode(doc))
		}
		return nodes, nil
	}
}

func resolveStats(s *store.Store) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return map[string]interface{}{
			"documents":          s.Len(),
			"activeTransactions": s.ActiveTransactions(),
		}, nil
	}
}
