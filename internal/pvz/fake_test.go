package pvz

import (
	"net/http/httptest"
	"testing"

	"github.com/slorun/slorun/internal/pvzstub"
)

func newFakeService(t *testing.T) (*pvzstub.Service, *httptest.Server) {
	t.Helper()
	svc := pvzstub.New()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return svc, srv
}
