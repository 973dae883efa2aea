package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
	"github.com/papercomputeco/memd/pkg/store/inmemory"
)

var _ = Describe("Server", func() {
	var (
		server *Server
		driver *inmemory.Driver
		ctx    context.Context
	)

	scope := memory.NewScope(map[string]string{"user_id": "u1"})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := func(jobID, memID, fact string, superseded bool) {
		m := &memory.Memory{
			ID:            memID,
			Scope:         scope,
			Fact:          fact,
			Topic:         "location",
			Confidence:    0.8,
			RevisionCount: 1,
			Superseded:    superseded,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		cs := &store.ChangeSet{
			JobID:    jobID,
			ScopeKey: scope.Key(),
			Writes: []*store.MemoryWrite{{
				Memory: m,
				Revisions: []*memory.Revision{{
					MemoryID:    memID,
					Number:      1,
					Action:      memory.ActionCreated,
					Fact:        fact,
					Confidence:  0.8,
					SourceJobID: jobID,
					CreatedAt:   now,
				}},
			}},
			Job: &memory.JobRecord{
				ID:       jobID,
				ScopeKey: scope.Key(),
				Status:   memory.JobCompleted,
				Result:   memory.JobResult{JobID: jobID, Status: memory.JobCompleted, MemoriesCreated: 1},
			},
		}
		Expect(driver.Apply(ctx, cs)).To(Succeed())
	}

	get := func(path string) (*http.Response, []byte) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, body
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		server = NewServer(Config{ListenAddr: ":0"}, driver, zap.NewNop())
	})

	It("responds to ping", func() {
		resp, body := get("/ping")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring("pong"))
	})

	Describe("GET /v1/memories", func() {
		BeforeEach(func() {
			seed("job-1", "01A", "lives in Boston", false)
			seed("job-2", "01B", "lives in Paris", true)
		})

		It("lists live memories for a canonical scope key", func() {
			resp, body := get("/v1/memories?scope_key=" + scope.Key())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out MemoriesResponse
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Memories[0].Fact).To(Equal("lives in Boston"))
		})

		It("canonicalizes raw scope pairs from the query", func() {
			resp, body := get("/v1/memories?user_id=u1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out MemoriesResponse
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.ScopeKey).To(Equal(scope.Key()))
			Expect(out.Count).To(Equal(1))
		})

		It("includes superseded memories on request", func() {
			resp, body := get("/v1/memories?scope_key=" + scope.Key() + "&include_superseded=true")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out MemoriesResponse
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(2))
		})

		It("rejects a request without a scope", func() {
			resp, _ := get("/v1/memories")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /v1/memories/:id", func() {
		It("returns the memory", func() {
			seed("job-1", "01A", "lives in Boston", false)

			resp, body := get("/v1/memories/01A")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var m memory.Memory
			Expect(json.Unmarshal(body, &m)).To(Succeed())
			Expect(m.ID).To(Equal("01A"))
			Expect(m.Fact).To(Equal("lives in Boston"))
		})

		It("404s on an unknown id", func() {
			resp, _ := get("/v1/memories/nope")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /v1/memories/:id/revisions", func() {
		It("returns the ordered history", func() {
			seed("job-1", "01A", "lives in Boston", false)

			resp, body := get("/v1/memories/01A/revisions")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out RevisionsResponse
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Revisions[0].Action).To(Equal(memory.ActionCreated))
		})

		It("404s on an unknown memory", func() {
			resp, _ := get("/v1/memories/nope/revisions")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /v1/jobs/:id", func() {
		It("returns the job record", func() {
			seed("job-1", "01A", "lives in Boston", false)

			resp, body := get("/v1/jobs/job-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var rec memory.JobRecord
			Expect(json.Unmarshal(body, &rec)).To(Succeed())
			Expect(rec.Status).To(Equal(memory.JobCompleted))
			Expect(rec.Result.MemoriesCreated).To(Equal(1))
		})

		It("404s on an unknown job", func() {
			resp, _ := get("/v1/jobs/nope")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
