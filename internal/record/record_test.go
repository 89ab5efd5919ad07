package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elastic-load/internal/keydist"
	"elastic-load/internal/loaderrors"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func tieredDist(t *testing.T) *keydist.Distribution {
	t.Helper()
	d, err := keydist.New(keydist.Tiers([]keydist.Tier{
		{Count: 5, Weight: 0.04},
		{Count: 5, Weight: 0.03},
		{Count: 40, Weight: 0.0126},
	}))
	require.NoError(t, err)
	return d
}

func TestGenerateDeterministic(t *testing.T) {
	d := tieredDist(t)

	g1, err := NewGenerator(d, 42, WithNow(fixedNow))
	require.NoError(t, err)
	g2, err := NewGenerator(d, 42, WithNow(fixedNow))
	require.NoError(t, err)

	a, err := g1.Generate(50)
	require.NoError(t, err)
	b, err := g2.Generate(50)
	require.NoError(t, err)

	require.Len(t, a, 50)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].PartitionKey, b[i].PartitionKey)
		assert.Equal(t, a[i].Body, b[i].Body)
	}
}

func TestGenerateDifferentSeeds(t *testing.T) {
	d := tieredDist(t)
	g1, _ := NewGenerator(d, 1)
	g2, _ := NewGenerator(d, 2)

	a, err := g1.Generate(5)
	require.NoError(t, err)
	b, err := g2.Generate(5)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestRecordsHaveUniqueIDsAndSyntheticKeys(t *testing.T) {
	g, err := NewGenerator(tieredDist(t), 7, WithNow(fixedNow))
	require.NoError(t, err)

	records, err := g.Generate(1000)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range records {
		require.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true

		assert.Equal(t, r.LogicalKey+";"+r.ID, r.PartitionKey)
		tx, ok := r.Payload.(*Transaction)
		require.True(t, ok)
		assert.Equal(t, r.LogicalKey, tx.StoreID)
		assert.Equal(t, r.PartitionKey, tx.SyntheticKey)
		assert.Equal(t, "2024-03-01", tx.Date)
		assert.Positive(t, r.Size())
	}
}

func TestGenerateFollowsDistribution(t *testing.T) {
	d, err := keydist.New([]keydist.Entry{{Key: "hot", Weight: 9}, {Key: "cold", Weight: 1}})
	require.NoError(t, err)
	g, err := NewGenerator(d, 5)
	require.NoError(t, err)

	records, err := g.Generate(10_000)
	require.NoError(t, err)

	hot := 0
	for _, r := range records {
		if r.LogicalKey == "hot" {
			hot++
		}
	}
	assert.InDelta(t, 0.9, float64(hot)/10_000, 0.02)
}

func TestStaticWorkloadUsesHottestKey(t *testing.T) {
	g, err := NewGenerator(tieredDist(t), 1, WithKind(KindStatic), WithNow(fixedNow))
	require.NoError(t, err)

	records, err := g.Generate(20)
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, "1", r.LogicalKey)
		tx := r.Payload.(*Transaction)
		assert.Equal(t, "USD", tx.Currency)
		assert.Equal(t, 5, tx.NumItems)
	}
}

func TestTemplateWorkload(t *testing.T) {
	doc, err := ParseTemplate([]byte(`{"StoreId": 0, "Region": "west", "Tags": ["a", "b"]}`))
	require.NoError(t, err)

	d, err := keydist.Uniform(3)
	require.NoError(t, err)
	g, err := NewGenerator(d, 9, WithKind(KindTemplate), WithTemplate(doc, ""))
	require.NoError(t, err)

	records, err := g.Generate(10)
	require.NoError(t, err)
	for _, r := range records {
		m := r.Payload.(map[string]any)
		assert.Equal(t, r.LogicalKey, m["StoreId"])
		assert.Equal(t, r.ID, m["id"])
		assert.Equal(t, r.PartitionKey, m[SyntheticKeyField])
		assert.Equal(t, "west", m["Region"])
		assert.True(t, strings.Contains(string(r.Body), `"Region":"west"`))
	}
	// template itself is untouched
	assert.Equal(t, float64(0), doc["StoreId"])
	assert.NotContains(t, doc, SyntheticKeyField)
}

func TestTemplateRequiresDocument(t *testing.T) {
	d, _ := keydist.Uniform(1)
	_, err := NewGenerator(d, 1, WithKind(KindTemplate))
	require.Error(t, err)
	assert.True(t, loaderrors.IsConfiguration(err))

	_, err = NewGenerator(d, 1, WithKind(KindTemplate), WithTemplate(map[string]any{"Region": "x"}, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workload.key_field")
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"StoreId": 1}`), 0o600))

	doc, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Contains(t, doc, "StoreId")

	_, err = LoadTemplate(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, loaderrors.IsConfiguration(err))

	_, err = ParseTemplate([]byte(`[1,2]`))
	assert.True(t, loaderrors.IsConfiguration(err))
}

func TestTransactionFactoryBuild(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	tf := NewTransactionFactory(
		func(*gofakeit.Faker) int { return 3 },
		func(*gofakeit.Faker) float64 { return 99.5 },
		Fixed("EUR"),
		Fixed("alice"),
		Fixed("France"),
		Fixed("1 Rue de Rivoli"),
		func(_ *gofakeit.Faker, now time.Time) time.Time { return now.Add(-24 * time.Hour) },
	)

	tx := tf.Build(gofakeit.New(1), "id-1", "42", now)
	assert.Equal(t, "id-1", tx.TransactionID)
	assert.Equal(t, "42", tx.StoreID)
	assert.Equal(t, "42;id-1", tx.SyntheticKey)
	assert.Equal(t, 3, tx.NumItems)
	assert.Equal(t, 99.5, tx.Amount)
	assert.Equal(t, "EUR", tx.Currency)
	assert.Equal(t, "alice", tx.UserID)
	assert.Equal(t, "France", tx.Country)
	assert.Equal(t, "1 Rue de Rivoli", tx.Address)
	assert.Equal(t, "2024-03-08", tx.Date)
}

func TestCustomFactory(t *testing.T) {
	tf := NewTransactionFactory(
		func(*gofakeit.Faker) int { return 5 },
		func(*gofakeit.Faker) float64 { return 99.5 },
		Fixed("USD"),
		Fixed("loaduser"),
		Fixed("USA"),
		Fixed("1234 Main Street"),
		Now,
	)

	g, err := NewGenerator(tieredDist(t), 3, WithFactory(tf))
	require.NoError(t, err)
	r, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, 99.5, r.Payload.(*Transaction).Amount)
}

func TestGenerateNegativeCount(t *testing.T) {
	g, err := NewGenerator(tieredDist(t), 1)
	require.NoError(t, err)
	_, err = g.Generate(-1)
	assert.True(t, loaderrors.IsConfiguration(err))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindTransactions, k)

	k, err = ParseKind("template")
	require.NoError(t, err)
	assert.Equal(t, KindTemplate, k)

	_, err = ParseKind("bulk")
	assert.Error(t, err)
}
