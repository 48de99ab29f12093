package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"resolution-dashboard/models"
)

func TestDecodeDocument(t *testing.T) {
	oid, err := primitive.ObjectIDFromHex("65f0c0ffee65f0c0ffee65f0")
	require.NoError(t, err)
	when := time.Date(2024, 5, 29, 16, 26, 40, 0, time.UTC)

	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: oid},
		{Key: "experiment_id", Value: "exp-1"},
		{Key: "format_version", Value: int32(2)},
		{Key: "result", Value: bson.D{{Key: "recommendation", Value: "p1"}}},
		{Key: "market_data", Value: bson.D{
			{Key: "resolved_price_outcome", Value: "p1"},
			{Key: "tags", Value: bson.A{"crypto"}},
		}},
		{Key: "timestamp", Value: primitive.NewDateTimeFromTime(when)},
	})
	require.NoError(t, err)

	rec, err := decodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "65f0c0ffee65f0c0ffee65f0", rec.LogicalID())
	assert.Equal(t, models.FormatV2, rec.Format())
	assert.Equal(t, "p1", rec.Recommendation())
	assert.Equal(t, []string{"crypto"}, rec.Tags())
	assert.Equal(t, models.Timestamp(when.Unix()), rec.Timestamp())
}

func TestBSONTimestamp(t *testing.T) {
	when := time.Date(2024, 5, 29, 16, 26, 40, 0, time.UTC)
	want := models.Timestamp(when.Unix())

	assert.Equal(t, want, bsonTimestamp(when))
	assert.Equal(t, want, bsonTimestamp(primitive.NewDateTimeFromTime(when)))
	assert.Equal(t, want, bsonTimestamp(int64(when.Unix())))
	assert.Equal(t, want, bsonTimestamp(int64(when.UnixMilli())))
	assert.Equal(t, want, bsonTimestamp(float64(when.Unix())))
	assert.Equal(t, want, bsonTimestamp("2024-05-29T16:26:40Z"))
	assert.Equal(t, models.Timestamp(0), bsonTimestamp(nil))
	assert.Equal(t, models.Timestamp(0), bsonTimestamp("soon"))
}
