package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lojaerp/erp-console/internal/app"
	_ "github.com/lojaerp/erp-console/testing"
)

func TestMainSkipsRuntimeInTestMode(t *testing.T) {
	require.True(t, app.RefreshTestMode())
	main()
}
