package idregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addr = ethcommon.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestFIDByAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/onChainIdRegistryEventByAddress", r.URL.Path)
		if r.URL.Query().Get("address") != "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"fid":42,"type":"IdRegisterEventTypeRegister"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())

	fid, err := c.FIDByAddress(context.Background(), addr)
	require.NoError(t, err)
	assert.EqualValues(t, 42, fid)

	_, err = c.FIDByAddress(context.Background(), ethcommon.HexToAddress("0x01"))
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFIDByAddress_Failures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
	}

	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := NewClient(srv.URL, nil).FIDByAddress(context.Background(), addr)
			assert.ErrorIs(t, err, common.ErrUpstreamVerification)
			assert.NotErrorIs(t, err, common.ErrorNotFound)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		_, err := NewClient(srv.URL, nil).FIDByAddress(context.Background(), addr)
		assert.ErrorIs(t, err, common.ErrUpstreamVerification)
	})

	t.Run("zero fid is not registered", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"fid":0}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, nil).FIDByAddress(context.Background(), addr)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}
