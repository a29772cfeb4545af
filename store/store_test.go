package store_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/store"
)

// postgresDSNEnv enables the postgres backend tests
const postgresDSNEnv = "DEVCREW_TEST_POSTGRES_DSN"

var _ = Describe("Stores", func() {
	runStoreTests := func(newBundle func() (*store.Bundle, func())) {
		var (
			bundle  *store.Bundle
			cleanup func()
		)

		BeforeEach(func() {
			bundle, cleanup = newBundle()
		})

		AfterEach(func() {
			cleanup()
		})

		Describe("ChatStore", func() {
			It("records a run and its messages in order", func() {
				id, err := bundle.Chats.CreateRun("build", []string{"proxy", "coder"})
				Expect(err).NotTo(HaveOccurred())

				Expect(bundle.Chats.AppendMessage(id, store.StoredMessage{Round: 1, Name: "proxy", Role: "user", Content: "start"})).To(Succeed())
				Expect(bundle.Chats.AppendMessage(id, store.StoredMessage{Round: 2, Name: "coder", Role: "assistant", Content: "done"})).To(Succeed())

				msgs, err := bundle.Chats.GetMessages(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(HaveLen(2))
				Expect(msgs[0].Seq).To(Equal(1))
				Expect(msgs[0].Name).To(Equal("proxy"))
				Expect(msgs[1].Seq).To(Equal(2))
				Expect(msgs[1].Content).To(Equal("done"))
				Expect(msgs[1].Round).To(Equal(2))

				run, err := bundle.Chats.GetRun(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(run.ChatName).To(Equal("build"))
				Expect(run.Participants).To(Equal([]string{"proxy", "coder"}))
				Expect(run.Status).To(Equal(store.StatusRunning))
				Expect(run.FinishedAt).To(BeNil())
			})

			It("finishes a run with its state", func() {
				id, err := bundle.Chats.CreateRun("build", []string{"a", "b"})
				Expect(err).NotTo(HaveOccurred())
				Expect(bundle.Chats.FinishRun(id, "terminated", 4, nil)).To(Succeed())

				run, err := bundle.Chats.GetRun(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(run.Status).To(Equal(store.StatusCompleted))
				Expect(run.State).To(Equal("terminated"))
				Expect(run.Rounds).To(Equal(4))
				Expect(run.FinishedAt).NotTo(BeNil())
				Expect(run.Error).To(BeNil())
			})

			It("marks a run with an error as failed", func() {
				id, err := bundle.Chats.CreateRun("build", []string{"a", "b"})
				Expect(err).NotTo(HaveOccurred())
				msg := "selection model: timeout"
				Expect(bundle.Chats.FinishRun(id, "interrupted", 2, &msg)).To(Succeed())

				run, err := bundle.Chats.GetRun(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(run.Status).To(Equal(store.StatusFailed))
				Expect(run.Error).NotTo(BeNil())
				Expect(*run.Error).To(Equal(msg))
			})

			It("reports unknown runs as not found", func() {
				_, err := bundle.Chats.GetRun("missing")
				Expect(err).To(MatchError(store.ErrNotFound))
				Expect(bundle.Chats.AppendMessage("missing", store.StoredMessage{Name: "a", Role: "user"})).To(MatchError(store.ErrNotFound))
				Expect(bundle.Chats.FinishRun("missing", "terminated", 1, nil)).To(MatchError(store.ErrNotFound))
				_, err = bundle.Chats.GetMessages("missing")
				Expect(err).To(MatchError(store.ErrNotFound))
			})

			It("lists runs newest first with limit and offset", func() {
				for _, name := range []string{"r1", "r2", "r3"} {
					_, err := bundle.Chats.CreateRun(name, []string{"a", "b"})
					Expect(err).NotTo(HaveOccurred())
					time.Sleep(10 * time.Millisecond) // ensure different timestamps
				}

				runs, total, err := bundle.Chats.ListRuns(2, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(Equal(3))
				Expect(runs).To(HaveLen(2))
				Expect(runs[0].ChatName).To(Equal("r3"))
				Expect(runs[1].ChatName).To(Equal("r2"))

				runs, total, err = bundle.Chats.ListRuns(2, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(Equal(3))
				Expect(runs).To(HaveLen(1))
				Expect(runs[0].ChatName).To(Equal("r1"))

				runs, _, err = bundle.Chats.ListRuns(10, 100)
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).To(BeEmpty())
			})
		})

		Describe("ExecutionStore", func() {
			It("records command results in order", func() {
				runID, err := bundle.Chats.CreateRun("build", []string{"a", "b"})
				Expect(err).NotTo(HaveOccurred())
				id, err := bundle.Executions.CreateExecution(runID, "all")
				Expect(err).NotTo(HaveOccurred())

				Expect(bundle.Executions.RecordCommand(id, store.CommandRecord{Group: "setup", Command: "mkdir app", Status: store.CommandSucceeded})).To(Succeed())
				Expect(bundle.Executions.RecordCommand(id, store.CommandRecord{Group: "setup", Command: "exit 3", Status: store.CommandFailed, Error: "exit status 3"})).To(Succeed())
				Expect(bundle.Executions.RecordCommand(id, store.CommandRecord{Group: "deps", Command: "npm i", Status: store.CommandSkipped})).To(Succeed())
				Expect(bundle.Executions.FinishExecution(id, false)).To(Succeed())

				recs, err := bundle.Executions.GetCommands(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(recs).To(HaveLen(3))
				Expect(recs[0].Seq).To(Equal(1))
				Expect(recs[1].Error).To(Equal("exit status 3"))
				Expect(recs[2].Status).To(Equal(store.CommandSkipped))

				info, err := bundle.Executions.GetExecution(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.RunID).To(Equal(runID))
				Expect(info.Mode).To(Equal("all"))
				Expect(info.Status).To(Equal(store.StatusFailed))
				Expect(info.FinishedAt).NotTo(BeNil())
			})

			It("lists executions per run, including standalone ones", func() {
				runID, err := bundle.Chats.CreateRun("build", []string{"a", "b"})
				Expect(err).NotTo(HaveOccurred())
				first, err := bundle.Executions.CreateExecution(runID, "all")
				Expect(err).NotTo(HaveOccurred())
				time.Sleep(10 * time.Millisecond)
				second, err := bundle.Executions.CreateExecution(runID, "step")
				Expect(err).NotTo(HaveOccurred())
				standalone, err := bundle.Executions.CreateExecution("", "script")
				Expect(err).NotTo(HaveOccurred())

				infos, err := bundle.Executions.ListExecutions(runID)
				Expect(err).NotTo(HaveOccurred())
				Expect(infos).To(HaveLen(2))
				Expect(infos[0].ID).To(Equal(first))
				Expect(infos[1].ID).To(Equal(second))

				infos, err = bundle.Executions.ListExecutions("")
				Expect(err).NotTo(HaveOccurred())
				Expect(infos).To(HaveLen(1))
				Expect(infos[0].ID).To(Equal(standalone))
				Expect(infos[0].RunID).To(BeEmpty())
			})

			It("reports unknown executions as not found", func() {
				Expect(bundle.Executions.RecordCommand("missing", store.CommandRecord{Group: "g", Command: "ls", Status: store.CommandSucceeded})).To(MatchError(store.ErrNotFound))
				Expect(bundle.Executions.FinishExecution("missing", true)).To(MatchError(store.ErrNotFound))
				_, err := bundle.Executions.GetCommands("missing")
				Expect(err).To(MatchError(store.ErrNotFound))
			})
		})
	}

	Context("Memory backend", func() {
		runStoreTests(func() (*store.Bundle, func()) {
			return store.NewMemoryBundle(), func() {}
		})
	})

	Context("SQLite backend", func() {
		runStoreTests(func() (*store.Bundle, func()) {
			dir, err := os.MkdirTemp("", "store-test-*")
			Expect(err).NotTo(HaveOccurred())

			bundle, err := store.NewSQLiteBundle(filepath.Join(dir, "test.db"))
			Expect(err).NotTo(HaveOccurred())

			return bundle, func() {
				bundle.Close()
				os.RemoveAll(dir)
			}
		})
	})

	Context("Postgres backend", func() {
		runStoreTests(func() (*store.Bundle, func()) {
			dsn := os.Getenv(postgresDSNEnv)
			if dsn == "" {
				Skip(postgresDSNEnv + " is not set")
			}
			bundle, err := store.NewPostgresBundle(context.Background(), dsn)
			Expect(err).NotTo(HaveOccurred())
			return bundle, func() { bundle.Close() }
		})
	})
})

var _ = Describe("NewBundle", func() {
	It("defaults to memory", func() {
		b, err := store.NewBundle(context.Background(), store.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Chats).To(BeAssignableToTypeOf(&store.MemoryChatStore{}))
	})

	It("creates the sqlite directory", func() {
		dir := GinkgoT().TempDir()
		opts := store.Options{Backend: store.BackendSQLite, Path: filepath.Join(dir, "nested", "store.db")}
		b, err := store.NewBundle(context.Background(), opts)
		Expect(err).NotTo(HaveOccurred())
		defer b.Close()
		Expect(filepath.Join(dir, "nested")).To(BeADirectory())
		Expect(b.Executions).To(BeAssignableToTypeOf(&store.SQLiteExecutionStore{}))
	})

	It("rejects unknown backends", func() {
		_, err := store.NewBundle(context.Background(), store.Options{Backend: "redis"})
		Expect(err).To(MatchError(ContainSubstring("unknown storage backend")))
	})
})
