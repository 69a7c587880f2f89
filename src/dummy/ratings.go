package dummy

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// Rating is one user,item,rating line.
type Rating struct {
	User  string
	Item  string
	Value float64
}

// LoadRatings reads a user,item,rating CSV file. A first line whose rating
// column is not a number is taken as a header.
func LoadRatings(path string) ([]Rating, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRatings(f)
}

// ReadRatings is LoadRatings over a reader.
func ReadRatings(r io.Reader) ([]Rating, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	res := []Rating{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		v, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: bad rating %q", line, record[2])
		}

		res = append(res, Rating{
			User:  strings.TrimSpace(record[0]),
			Item:  strings.TrimSpace(record[1]),
			Value: v,
		})
	}

	return res, nil
}

// SyntheticRatings generates n ratings in [1, 5] for users u0..u(users-1)
// and items i0..i(items-1). Every user and item appears at least once, so
// that nodes using the same counts share parameter shapes.
func SyntheticRatings(users, items, n int, seed int64) []Rating {
	rnd := rand.New(rand.NewSource(seed))

	taste := make([]float64, users)
	for u := range taste {
		taste[u] = rnd.Float64()
	}
	quality := make([]float64, items)
	for i := range quality {
		quality[i] = rnd.Float64()
	}

	rate := func(u, i int) Rating {
		v := 1 + 4*(0.5*taste[u]+0.5*quality[i])
		return Rating{
			User:  "u" + strconv.Itoa(u),
			Item:  "i" + strconv.Itoa(i),
			Value: v,
		}
	}

	res := make([]Rating, 0, n)
	for k := 0; k < users || k < items; k++ {
		res = append(res, rate(k%users, k%items))
	}
	for len(res) < n {
		res = append(res, rate(rnd.Intn(users), rnd.Intn(items)))
	}
	return res
}
