package dummy

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/model"
)

const (
	userKey = "users"
	itemKey = "items"

	defaultLearningRate = 0.02
	defaultRegularizer  = 0.01
)

// Trainer is a matrix-factorisation recommender.
type Trainer struct {
	mu sync.Mutex

	dim     int
	lr      float64
	reg     float64
	ratings []indexed
	users   map[string]int
	items   map[string]int
	rnd     *rand.Rand

	snap   *model.Snapshot
	logger *logrus.Entry
}

type indexed struct {
	user, item int
	value      float64
}

// NewTrainer creates a trainer over ratings with embeddings of size dim,
// initialised from seed. Users and items are indexed in sorted order.
func NewTrainer(ratings []Rating, dim int, seed int64, logger *logrus.Entry) *Trainer {
	if dim < 1 {
		dim = 1
	}

	users := index(ratings, func(r Rating) string { return r.User })
	items := index(ratings, func(r Rating) string { return r.Item })

	idx := make([]indexed, len(ratings))
	for k, r := range ratings {
		idx[k] = indexed{user: users[r.User], item: items[r.Item], value: r.Value}
	}

	rnd := rand.New(rand.NewSource(seed))

	t := &Trainer{
		dim:     dim,
		lr:      defaultLearningRate,
		reg:     defaultRegularizer,
		ratings: idx,
		users:   users,
		items:   items,
		rnd:     rnd,
		logger:  logger,
	}

	t.snap = model.NewSnapshot("", map[string]model.Tensor{
		userKey: randomTensor(rnd, len(users), dim),
		itemKey: randomTensor(rnd, len(items), dim),
	})

	logger.WithFields(logrus.Fields{
		"ratings": len(ratings),
		"users":   len(users),
		"items":   len(items),
		"dim":     dim,
	}).Debug("Init Dummy Trainer")

	return t
}

func index(ratings []Rating, key func(Rating) string) map[string]int {
	names := []string{}
	seen := map[string]bool{}
	for _, r := range ratings {
		k := key(r)
		if !seen[k] {
			seen[k] = true
			names = append(names, k)
		}
	}
	sort.Strings(names)

	res := make(map[string]int, len(names))
	for i, n := range names {
		res[n] = i
	}
	return res
}

func randomTensor(rnd *rand.Rand, rows, dim int) model.Tensor {
	data := make([]float64, rows*dim)
	for i := range data {
		data[i] = 0.1 + 0.5*rnd.Float64()
	}
	t, _ := model.NewTensor([]int{rows, dim}, data)
	return t
}

// Train runs one shuffled pass of SGD over the ratings.
func (t *Trainer) Train(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, _ := t.snap.Tensor(userKey)
	v, _ := t.snap.Tensor(itemKey)

	order := t.rnd.Perm(len(t.ratings))
	for k, i := range order {
		if k%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		r := t.ratings[i]
		pu := u.Data[r.user*t.dim : (r.user+1)*t.dim]
		qi := v.Data[r.item*t.dim : (r.item+1)*t.dim]

		e := r.value - dot(pu, qi)
		for f := 0; f < t.dim; f++ {
			p, q := pu[f], qi[f]
			pu[f] += t.lr * (e*q - t.reg*p)
			qi[f] += t.lr * (e*p - t.reg*q)
		}
	}

	t.snap = model.NewSnapshot(t.snap.Name(), map[string]model.Tensor{
		userKey: u,
		itemKey: v,
	})

	t.logger.WithField("rmse", t.rmse()).Debug("Trained")

	return nil
}

// Snapshot implements model.Trainer.
func (t *Trainer) Snapshot() *model.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// SetSnapshot implements model.Trainer. A snapshot with other shapes is
// ignored.
func (t *Trainer) SetSnapshot(s *model.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s == nil || !t.snap.Compatible(s) {
		t.logger.Warn("Ignoring incompatible snapshot")
		return
	}
	t.snap = s
}

// Predict returns the predicted rating, and false for unknown users or
// items.
func (t *Trainer) Predict(user, item string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ui, ok := t.users[user]
	if !ok {
		return 0, false
	}
	ii, ok := t.items[item]
	if !ok {
		return 0, false
	}

	u, _ := t.snap.Tensor(userKey)
	v, _ := t.snap.Tensor(itemKey)
	return dot(u.Data[ui*t.dim:(ui+1)*t.dim], v.Data[ii*t.dim:(ii+1)*t.dim]), true
}

// RMSE over the training ratings.
func (t *Trainer) RMSE() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rmse()
}

func (t *Trainer) rmse() float64 {
	if len(t.ratings) == 0 {
		return 0
	}
	u, _ := t.snap.Tensor(userKey)
	v, _ := t.snap.Tensor(itemKey)

	sum := 0.0
	for _, r := range t.ratings {
		e := r.value - dot(u.Data[r.user*t.dim:(r.user+1)*t.dim], v.Data[r.item*t.dim:(r.item+1)*t.dim])
		sum += e * e
	}
	return math.Sqrt(sum / float64(len(t.ratings)))
}

// Guesses counts the ratings predicted within half a star. It lets the
// trainer back a feedback.CorrectnessEvaluator.
func (t *Trainer) Guesses() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, _ := t.snap.Tensor(userKey)
	v, _ := t.snap.Tensor(itemKey)

	correct := 0
	for _, r := range t.ratings {
		p := dot(u.Data[r.user*t.dim:(r.user+1)*t.dim], v.Data[r.item*t.dim:(r.item+1)*t.dim])
		if math.Abs(p-r.value) < 0.5 {
			correct++
		}
	}
	return correct, len(t.ratings)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
