package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateReviewPolicy(t *testing.T) {
	assert.NoError(t, validateReviewPolicy(DefaultReviewPolicy()))

	cases := map[string]func(p *ReviewPolicy){
		"negative peers":   func(p *ReviewPolicy) { p.MinPeerReviewers = -1 },
		"short passwords":  func(p *ReviewPolicy) { p.PasswordLength = 4 },
		"empty department": func(p *ReviewPolicy) { p.ImportedDepartment = " " },
		"zero cycle days":  func(p *ReviewPolicy) { p.DefaultCycleDays = 0 },
		"zero ai timeout":  func(p *ReviewPolicy) { p.AITimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultReviewPolicy()
			mutate(&p)
			assert.Error(t, validateReviewPolicy(p))
		})
	}
}

func TestStaticReviewPolicy(t *testing.T) {
	p := DefaultReviewPolicy()
	p.AITimeout = time.Second
	holder := StaticReviewPolicy(p)
	assert.Equal(t, time.Second, holder.Get().AITimeout)

	var nilHolder *ReviewPolicyHolder
	assert.Equal(t, DefaultReviewPolicy(), nilHolder.Get())
}
