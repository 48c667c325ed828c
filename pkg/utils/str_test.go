package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitByMultipleDelimiters(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitByMultipleDelimiters("a,b;c", ",", ";"))
	assert.Equal(t, []string{"a", "b=c"}, SplitByMultipleDelimiters("a,b=c", ",", ";"))
	assert.Equal(t, []string{"a"}, SplitByMultipleDelimiters("a", ",", ";"))
	assert.Equal(t, []string{"a,b"}, SplitByMultipleDelimiters("a,b"))
}

func TestSplitAddrs(t *testing.T) {
	assert.Equal(t, []string{"10.0.0.1:26379", "10.0.0.2:26379"}, SplitAddrs(" 10.0.0.1:26379 ;10.0.0.2:26379,"))
	assert.Equal(t, []string{"127.0.0.1:6379"}, SplitAddrs("127.0.0.1:6379"))
	assert.Empty(t, SplitAddrs(""))
}
