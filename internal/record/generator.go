package record

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"elastic-load/internal/keydist"
	"elastic-load/internal/loaderrors"
)

// Kind はワークロードの種類
type Kind string

const (
	// KindTransactions は分布に従ったキーで乱数トランザクションを生成する
	KindTransactions Kind = "transactions"
	// KindStatic は最もホットなキーに固定値のトランザクションを生成する
	KindStatic Kind = "static"
	// KindTemplate はJSONテンプレートを複製し、キーフィールドを分布で上書きする
	KindTemplate Kind = "template"
)

// DefaultKeyField はテンプレート中の論理キーフィールド名
const DefaultKeyField = "StoreId"

// ParseKind は文字列から Kind を得る
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTransactions, KindStatic, KindTemplate:
		return Kind(s), nil
	case "":
		return KindTransactions, nil
	}
	return "", &loaderrors.ErrConfiguration{
		Name:    "workload.kind",
		Value:   s,
		Message: "must be one of transactions, static, template",
	}
}

// Option は Generator の設定関数
type Option func(*Generator)

// WithKind はワークロードの種類を設定する
func WithKind(k Kind) Option {
	return func(g *Generator) { g.kind = k }
}

// WithFactory はトランザクションのファクトリを差し替える
func WithFactory(tf *TransactionFactory) Option {
	return func(g *Generator) { g.factory = tf }
}

// WithTemplate はテンプレートドキュメントとキーフィールドを設定する
func WithTemplate(doc map[string]any, keyField string) Option {
	return func(g *Generator) {
		g.template = doc
		if keyField != "" {
			g.keyField = keyField
		}
	}
}

// WithNow はタイムスタンプの取得関数を差し替える
func WithNow(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator は分布とシードからレコードを生成する
//
// 乱数源を内部に持つため並行利用は不可。ワーカーごとに1つ作成する
type Generator struct {
	dist     *keydist.Distribution
	kind     Kind
	factory  *TransactionFactory
	template map[string]any
	keyField string
	rng      *rand.Rand
	faker    *gofakeit.Faker
	now      func() time.Time
}

// NewGenerator は新しい Generator を作成する
//
// 同じ分布・シード・オプションからは同じレコード列が得られる
func NewGenerator(dist *keydist.Distribution, seed int64, opts ...Option) (*Generator, error) {
	if dist == nil {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "distribution",
			Message: "a partition key distribution is required",
		}
	}

	g := &Generator{
		dist:     dist,
		kind:     KindTransactions,
		keyField: DefaultKeyField,
		rng:      rand.New(rand.NewSource(seed)),
		faker:    gofakeit.New(seed),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	switch g.kind {
	case KindTransactions, KindStatic:
		if g.factory == nil && g.kind == KindStatic {
			g.factory = StaticTransactionFactory()
		}
		if g.factory == nil {
			g.factory = RandomTransactionFactory()
		}
	case KindTemplate:
		if len(g.template) == 0 {
			return nil, &loaderrors.ErrConfiguration{
				Name:    "workload.template",
				Message: "template workload requires a non-empty document",
			}
		}
		if _, ok := g.template[g.keyField]; !ok {
			return nil, &loaderrors.ErrConfiguration{
				Name:    "workload.key_field",
				Value:   g.keyField,
				Message: "template does not contain the key field",
			}
		}
	default:
		return nil, &loaderrors.ErrConfiguration{Name: "workload.kind", Value: string(g.kind)}
	}
	return g, nil
}

// Kind はワークロードの種類を返す
func (g *Generator) Kind() Kind {
	return g.kind
}

// Next は次の1件を生成する
func (g *Generator) Next() (Record, error) {
	u, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return Record{}, fmt.Errorf("generating id: %w", err)
	}
	id := u.String()

	switch g.kind {
	case KindStatic:
		key := g.dist.Hottest()
		return newRecord(id, key, g.factory.Build(g.faker, id, key, g.now()))
	case KindTemplate:
		key := g.dist.Sample(g.rng)
		doc := make(map[string]any, len(g.template)+3)
		for k, v := range g.template {
			doc[k] = v
		}
		doc["id"] = id
		doc[g.keyField] = key
		doc[SyntheticKeyField] = SyntheticKey(key, id)
		return newRecord(id, key, doc)
	default:
		key := g.dist.Sample(g.rng)
		return newRecord(id, key, g.factory.Build(g.faker, id, key, g.now()))
	}
}

// Generate は count 件のレコードを生成する
func (g *Generator) Generate(count int) ([]Record, error) {
	if count < 0 {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "workload.records",
			Value:   count,
			Message: "record count must not be negative",
		}
	}
	out := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		r, err := g.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadTemplate はJSONテンプレートファイルを読み込む
func LoadTemplate(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "workload.template",
			Value:   path,
			Message: err.Error(),
		}
	}
	return ParseTemplate(data)
}

// ParseTemplate はJSONテンプレートを解析する
func ParseTemplate(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "workload.template",
			Message: "template is not a JSON object: " + err.Error(),
		}
	}
	if len(doc) == 0 {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "workload.template",
			Message: "template is empty",
		}
	}
	return doc, nil
}
