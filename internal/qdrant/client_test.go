package qdrant

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQdrantAddress(t *testing.T) {
	tests := []struct {
		raw  string
		host string
		port int
		err  bool
	}{
		{raw: "", host: "localhost", port: 6334},
		{raw: "qdrant", host: "qdrant", port: 6334},
		{raw: "qdrant:7000", host: "qdrant", port: 7000},
		{raw: "http://db.local:6334", host: "db.local", port: 6334},
		{raw: "grpc://", host: "localhost", port: 6334},
		{raw: ":6335", host: "localhost", port: 6335},
		{raw: "qdrant:notaport", err: true},
	}

	for _, tt := range tests {
		host, port, err := parseQdrantAddress(tt.raw)
		if tt.err {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.host, host, tt.raw)
		assert.Equal(t, tt.port, port, tt.raw)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := map[string]any{
		"fingerprint": "abc",
		"id":          int64(3),
		"score":       0.5,
		"function":    true,
		"missing":     nil,
	}
	out := PayloadToMap(MapToPayload(in))
	assert.Equal(t, in, out)

	// ints are widened, unknown kinds are stringified
	out = PayloadToMap(MapToPayload(map[string]any{"n": 7, "list": []int{1}}))
	assert.Equal(t, int64(7), out["n"])
	assert.Equal(t, "[1]", out["list"])
}

func TestNewPoint(t *testing.T) {
	p := NewPoint(9, []float32{1, 2}, map[string]any{"k": "v"})
	assert.Equal(t, uint64(9), p.GetId().GetNum())
	assert.Equal(t, []float32{1, 2}, p.GetVectors().GetVector().GetData())
	assert.Equal(t, "v", p.GetPayload()["k"].GetStringValue())

	retrieved := &qdrant.RetrievedPoint{Vectors: &qdrant.VectorsOutput{
		VectorsOptions: &qdrant.VectorsOutput_Vector{Vector: &qdrant.VectorOutput{Data: []float32{3}}},
	}}
	assert.Equal(t, []float32{3}, PointVector(retrieved))
	assert.Nil(t, PointVector(&qdrant.RetrievedPoint{}))
}
