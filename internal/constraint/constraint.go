// Package constraint provides route parameter constraints. A request whose
// parameter fails its constraint does not match the route and is answered
// with 404, the same as an unknown path.
package constraint

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Constraint decides whether a route parameter value is acceptable.
type Constraint interface {
	Match(value string) bool
}

// Func adapts a predicate to Constraint.
type Func func(value string) bool

func (f Func) Match(value string) bool { return f(value) }

type oneOf map[string]struct{}

func (s oneOf) Match(value string) bool {
	_, ok := s[value]
	return ok
}

// OneOf matches exactly the given values. Matching is case-sensitive.
func OneOf(values ...string) Constraint {
	s := make(oneOf, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Gender matches "male" and "female" and nothing else.
func Gender() Constraint {
	return OneOf("male", "female")
}

type regex struct{ re *regexp.Regexp }

func (r regex) Match(value string) bool { return r.re.MatchString(value) }

// Regex matches values that the pattern matches in full.
func Regex(pattern string) (Constraint, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("constraint: %w", err)
	}
	return regex{re: re}, nil
}

// MustRegex is like Regex but panics on an invalid pattern.
func MustRegex(pattern string) Constraint {
	c, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return c
}

// Int matches base-10 signed integers that fit in an int.
func Int() Constraint {
	return Func(func(value string) bool {
		_, err := strconv.Atoi(value)
		return err == nil
	})
}

// IntRange matches integers in [min, max].
func IntRange(min, max int) Constraint {
	return Func(func(value string) bool {
		n, err := strconv.Atoi(value)
		return err == nil && n >= min && n <= max
	})
}

// TelPattern is a hyphenated telephone number such as 06-1234-5678.
const TelPattern = `\d{2,5}-\d{1,4}-\d{4}`

// Map names constraints so routes can refer to them.
type Map map[string]Constraint

// Default returns the constraints used by the sample routes.
func Default() Map {
	return Map{
		"myGender": Gender(),
		"int":      Int(),
		"tel":      MustRegex(TelPattern),
	}
}

// Get returns the named constraint.
func (m Map) Get(name string) (Constraint, error) {
	c, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("constraint: unknown constraint %q", name)
	}
	return c, nil
}

// Param returns middleware that answers 404 unless the chi URL parameter
// param satisfies c.
func Param(param string, c Constraint) func(http.Handler) http.Handler {
	return ParamOr(param, c, http.NotFoundHandler())
}

// ParamOr is like Param but serves notFound on mismatch.
func ParamOr(param string, c Constraint, notFound http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !c.Match(chi.URLParam(r, param)) {
				notFound.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
