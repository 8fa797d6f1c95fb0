package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonoirwinrsa/image-service/conf"
)

func TestBuildChunkCache_TypeNoneDisablesCache(t *testing.T) {
	bc := &conf.Bootstrap{
		Device: &conf.Device{
			Cache: &conf.Cache{Type: "none"},
		},
	}

	c, err := buildChunkCache(bc)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBuildChunkCache_DefaultTypeEnablesCache(t *testing.T) {
	c, err := buildChunkCache(&conf.Bootstrap{})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestBuildChunkCache_BlobcacheTypeEnablesCache(t *testing.T) {
	bc := &conf.Bootstrap{
		Device: &conf.Device{
			Cache: &conf.Cache{Type: "blobcache"},
		},
	}

	c, err := buildChunkCache(bc)
	require.NoError(t, err)
	assert.NotNil(t, c)
}
