package aws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnwrapSNSEnvelope(t *testing.T) {
	inner := `{"type":"payment_succeeded","order_id":"o-1"}`
	envelope := `{"Type":"Notification","MessageId":"m-1","Message":"{\"type\":\"payment_succeeded\",\"order_id\":\"o-1\"}"}`

	assert.Equal(t, inner, UnwrapSNSEnvelope(envelope))
	assert.Equal(t, inner, UnwrapSNSEnvelope(inner))
	assert.Equal(t, "not json", UnwrapSNSEnvelope("not json"))
}
