package archive

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// checkDuplicateKeys reports an error naming the first duplicate mapping
// key found anywhere in the document.
// yaml.v3's Unmarshal silently keeps the last occurrence, so this walks
// the raw Node tree first to catch what Unmarshal would otherwise hide.
func checkDuplicateKeys(raw []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return walkDuplicates(&doc)
}

func walkDuplicates(n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := walkDuplicates(c); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		seen := make(map[string]struct{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if _, ok := seen[key.Value]; ok {
				return fmt.Errorf("duplicate key %q at line %d", key.Value, key.Line)
			}
			seen[key.Value] = struct{}{}
			if err := walkDuplicates(n.Content[i+1]); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := walkDuplicates(c); err != nil {
				return err
			}
		}
	}
	return nil
}
