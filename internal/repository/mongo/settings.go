package mongo

import (
	"context"

	"flushbot/models"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrSettingsNotFound = errors.New("settings not found")

type settingsDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Name     string             `bson:"name"`
	Enabled  bool               `bson:"enabled"`
	Settings models.Settings    `bson:"settings"`
	Controls models.Controls    `bson:"controls"`
}

// SettingsRepository keeps strategy settings in flushbot.settings, one
// document per strategy. Controls and enabled can be edited while running.
type SettingsRepository struct {
	conn       *mongo.Client
	collection *mongo.Collection
}

func NewSettingsRepository(conn *mongo.Client) *SettingsRepository {
	collection := conn.Database("flushbot").Collection("settings", options.Collection().SetRegistry(Registry()))

	return &SettingsRepository{conn: conn, collection: collection}
}

func (r *SettingsRepository) List(ctx context.Context) ([]models.SettingsEntry, error) {
	cur, err := r.collection.Find(ctx, bson.D{{Key: "enabled", Value: true}}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list settings")
	}

	var docs []settingsDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "list settings")
	}

	out := make([]models.SettingsEntry, 0, len(docs))
	for _, doc := range docs {
		out = append(out, models.SettingsEntry{Name: doc.Name, Controls: doc.Controls})
	}

	return out, nil
}

func (r *SettingsRepository) find(ctx context.Context, name string) (*settingsDocument, error) {
	var doc settingsDocument
	if err := r.collection.FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrap(ErrSettingsNotFound, name)
		}
		return nil, errors.Wrapf(err, "settings %s", name)
	}

	return &doc, nil
}

func (r *SettingsRepository) Load(ctx context.Context, name string) (*models.Settings, error) {
	doc, err := r.find(ctx, name)
	if err != nil {
		return nil, err
	}

	s := doc.Settings
	s.Name = doc.Name

	return &s, nil
}

func (r *SettingsRepository) Controls(ctx context.Context, name string) (models.Controls, bool, error) {
	doc, err := r.find(ctx, name)
	if errors.Is(err, ErrSettingsNotFound) {
		return models.Controls{}, false, nil
	}
	if err != nil {
		return models.Controls{}, false, err
	}

	return doc.Controls, doc.Enabled, nil
}

// Save creates or replaces the document of s.Name.
func (r *SettingsRepository) Save(ctx context.Context, s *models.Settings, controls models.Controls, enabled bool) error {
	doc := settingsDocument{
		Name:     s.Name,
		Enabled:  enabled,
		Settings: *s,
		Controls: controls,
	}

	_, err := r.collection.ReplaceOne(ctx, bson.D{{Key: "name", Value: s.Name}}, doc, options.Replace().SetUpsert(true))

	return errors.Wrapf(err, "save settings %s", s.Name)
}

func (r *SettingsRepository) UpdateControls(ctx context.Context, name string, controls models.Controls) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.D{{Key: "name", Value: name}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "controls", Value: controls}}}},
	)
	if err != nil {
		return errors.Wrapf(err, "update controls of %s", name)
	}
	if res.MatchedCount == 0 {
		return errors.Wrap(ErrSettingsNotFound, name)
	}

	return nil
}
