// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weaviate

import (
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class that holds swarm memory records.
const ClassName = "SwarmMemory"

// memorySchema returns the SwarmMemory class definition.
//
// Only content is vectorized; every other property is a filter key.
// The project property isolates repositories sharing one Weaviate
// deployment, the same way a data space would.
func memorySchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	indexSearchable := new(bool)
	*indexSearchable = true

	skip := map[string]interface{}{
		"text2vec-transformers": map[string]interface{}{
			"skip": true,
		},
	}

	return &models.Class{
		Class:       ClassName,
		Description: "Decisions, patterns, and observations extracted from assistant sessions",
		Vectorizer:  "text2vec-transformers",
		ModuleConfig: map[string]interface{}{
			"text2vec-transformers": map[string]interface{}{
				"vectorizeClassName": false,
			},
		},
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "recordId",
				DataType:        []string{"text"},
				Description:     "Graph record identifier (UUID)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skip,
			},
			{
				Name:            "content",
				DataType:        []string{"text"},
				Description:     "The remembered text",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:            "kind",
				DataType:        []string{"text"},
				Description:     "Record kind: decision, pattern, observation",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skip,
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Classifier topic tag, e.g. security, database",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skip,
			},
			{
				Name:            "project",
				DataType:        []string{"text"},
				Description:     "Repository isolation key",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skip,
			},
			{
				Name:         "createdAt",
				DataType:     []string{"date"},
				Description:  "When the record was appended locally",
				ModuleConfig: skip,
			},
		},
	}
}
