package database

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// toDoc converts a tagged model struct into a Doc via a bson round trip, so
// both backends store the same document shape.
func toDoc(v any) (Doc, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Doc
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// fromDoc decodes a Doc into a tagged model struct.
func fromDoc(doc Doc, out any) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
