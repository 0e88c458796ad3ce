package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	fieldID          = "id"
	fieldVector      = "vector"
	fieldSource      = "source"
	fieldCategory    = "category"
	fieldChunkIndex  = "chunk_index"
	fieldTotalChunks = "total_chunks"
	fieldDocument    = "document"

	maxIDLength       = 512
	maxSourceLength   = 512
	maxCategoryLength = 128
	maxDocumentLength = 65535
)

// outputFields are returned with every search and query.
var outputFields = []string{fieldID, fieldSource, fieldCategory, fieldChunkIndex, fieldTotalChunks, fieldDocument}

// ChunkSchema describes the chunk collection for vectors of dim.
func ChunkSchema(name string, dim int) *entity.Schema {
	varchar := func(n string, max int) *entity.Field {
		return &entity.Field{
			Name:       n,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": strconv.Itoa(max)},
		}
	}

	id := varchar(fieldID, maxIDLength)
	id.PrimaryKey = true
	id.AutoID = false

	return &entity.Schema{
		CollectionName: name,
		Description:    "Knowledge base document chunks",
		Fields: []*entity.Field{
			id,
			{
				Name:       fieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
			},
			varchar(fieldSource, maxSourceLength),
			varchar(fieldCategory, maxCategoryLength),
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldTotalChunks, DataType: entity.FieldTypeInt64},
			varchar(fieldDocument, maxDocumentLength),
		},
	}
}

// vectorDim reads the dimension of the vector field from a collection schema, or 0.
func vectorDim(schema *entity.Schema) int {
	if schema == nil {
		return 0
	}
	for _, f := range schema.Fields {
		if f.Name == fieldVector {
			dim, _ := strconv.Atoi(f.TypeParams["dim"])
			return dim
		}
	}
	return 0
}
