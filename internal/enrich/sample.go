package enrich

import (
	"github.com/rotisserie/eris"

	"github.com/mg-platform/enrich-cli/internal/model"
)

// SelectSample returns the first n eligible records in dataset order. When
// fewer than n records are eligible, all of them are returned and partial is
// true.
func SelectSample(records []model.CompanyRecord, n int) (sample []model.CompanyRecord, partial bool, err error) {
	if n < 1 {
		return nil, false, eris.Errorf("enrich: sample size must be >= 1, got %d", n)
	}
	sample = make([]model.CompanyRecord, 0, min(n, len(records)))
	for _, r := range records {
		if !r.Eligible() {
			continue
		}
		sample = append(sample, r)
		if len(sample) == n {
			return sample, false, nil
		}
	}
	return sample, true, nil
}
