package http

import (
	"fmt"
	"net/http"
)

type ServerConfig struct {
	Port int
}

// NewServer wires the circulation routes. metrics may be nil.
func NewServer(config ServerConfig, h *BorrowHandler, metrics http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", ping)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	mux.HandleFunc("/borrowing/borrow", h.route(http.MethodPost, h.borrow))
	mux.HandleFunc("/borrowing/return", h.route(http.MethodPost, h.returnBook))
	mux.HandleFunc("/borrowing/my-current-borrows", h.route(http.MethodGet, h.myCurrentBorrows))
	mux.HandleFunc("/borrowing/my-borrows", h.route(http.MethodGet, h.myBorrows))
	mux.HandleFunc("/borrowing/records", h.route(http.MethodGet, h.listRecords))
	mux.HandleFunc("/borrowing/records/", h.route(http.MethodGet, h.getRecordById))
	mux.HandleFunc("/borrowing/overdue", h.route(http.MethodGet, h.listOverdue))
	mux.HandleFunc("/borrowing/statistics", h.route(http.MethodGet, h.statistics))
	mux.HandleFunc("/borrowing/user/", h.route(http.MethodGet, h.userHistory))

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: mux,
	}
	return &server
}

/* Tests the http server connection.  */
func ping(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	if method == http.MethodGet {
		w.WriteHeader(http.StatusNoContent)
		return
	} else {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}
