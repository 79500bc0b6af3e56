package schema

import "github.com/edgecomet/apcore/internal/common/yamlutil"

func parseYAMLForTest(raw []byte) (Node, error) {
	var doc Node
	if err := yamlutil.UnmarshalStrict(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
