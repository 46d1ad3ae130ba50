package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"flushbot/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestDecimalCodec(t *testing.T) {
	type doc struct {
		Price decimal.Decimal `bson:"price"`
	}

	raw, err := bson.MarshalWithRegistry(Registry(), doc{Price: decimal.RequireFromString("29000.15")})
	require.NoError(t, err)
	assert.Equal(t, "29000.15", bson.Raw(raw).Lookup("price").StringValue())

	var out doc
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &out))
	assert.Equal(t, "29000.15", out.Price.String())

	t.Run("numbers", func(t *testing.T) {
		raw, err := bson.Marshal(bson.D{{Key: "price", Value: 1.25}})
		require.NoError(t, err)

		var out doc
		require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &out))
		assert.Equal(t, "1.25", out.Price.String())

		raw, err = bson.Marshal(bson.D{{Key: "price", Value: int32(7)}})
		require.NoError(t, err)
		require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &out))
		assert.Equal(t, "7", out.Price.String())
	})
}

// TestSettingsRepository needs a running mongo, MONGO_TEST_URI=mongodb://localhost:27017
func TestSettingsRepository(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	repo := NewSettingsRepository(client)
	_, _ = repo.collection.DeleteMany(ctx, bson.D{{Key: "name", Value: "args_test.txt"}})

	s := &models.Settings{
		Name:         "args_test.txt",
		Exchange:     "BINANCE",
		Interval:     "5m",
		Symbol:       "BTCUSDT",
		FlushPercent: decimal.RequireFromString("1.8"),
		Quantity:     decimal.RequireFromString("0.01"),
	}
	require.NoError(t, repo.Save(ctx, s, models.Controls{}, true))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, entries, models.SettingsEntry{Name: "args_test.txt"})

	loaded, err := repo.Load(ctx, "args_test.txt")
	require.NoError(t, err)
	assert.Equal(t, "1.8", loaded.FlushPercent.String())

	require.NoError(t, repo.UpdateControls(ctx, "args_test.txt", models.Controls{CloseOnly: true}))
	c, ok, err := repo.Controls(ctx, "args_test.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.CloseOnly)

	_, ok, err = repo.Controls(ctx, "args_missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}
