package expense_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/expense"
	"github.com/workfin/finance-core/internal/workflow"
)

type mockService struct {
	createError   error
	getError      error
	listError     error
	decisionError error
	resubmitError error

	expense  *expense.Expense
	expenses []*expense.Expense
	result   *workflow.DecisionResult
}

func (m *mockService) CreateExpense(ctx context.Context, dto expense.CreateExpenseDTO, submittedBy int64) (*expense.Expense, error) {
	if m.createError != nil {
		return nil, m.createError
	}
	return m.expense, nil
}

func (m *mockService) GetExpense(ctx context.Context, id int64) (*expense.Expense, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.expense, nil
}

func (m *mockService) ListExpenses(ctx context.Context, projectID int64, limit, offset int) ([]*expense.Expense, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return m.expenses, nil
}

func (m *mockService) RecordDecision(ctx context.Context, expenseID int64, approverID int64, dto expense.DecisionDTO) (*workflow.DecisionResult, error) {
	if m.decisionError != nil {
		return nil, m.decisionError
	}
	return m.result, nil
}

func (m *mockService) Resubmit(ctx context.Context, expenseID int64, actorID int64, dto expense.ResubmitDTO) (*expense.Expense, error) {
	if m.resubmitError != nil {
		return nil, m.resubmitError
	}
	return m.expense, nil
}

var _ = Describe("Handler", func() {
	var (
		service  *mockService
		router   *chi.Mux
		recorder *httptest.ResponseRecorder
	)

	request := func(method, target string, body []byte, actorID int64) *http.Request {
		req := httptest.NewRequest(method, target, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		if actorID != 0 {
			req = req.WithContext(internal.ContextWithActor(req.Context(), actorID))
		}
		return req
	}

	BeforeEach(func() {
		service = &mockService{
			expense: &expense.Expense{
				ID:        1,
				ProjectID: 1,
				Amount:    decimal.RequireFromString("250.00"),
				Status:    expense.StatusPending,
			},
		}

		handler := expense.NewHandler(service)
		router = chi.NewRouter()
		router.Post("/expenses", handler.CreateExpense)
		router.Get("/expenses/{id}", handler.GetExpense)
		router.Get("/expenses", handler.ListExpenses)
		router.Post("/expenses/{id}/decisions", handler.RecordDecision)
		router.Post("/expenses/{id}/resubmit", handler.Resubmit)

		recorder = httptest.NewRecorder()
	})

	Describe("CreateExpense", func() {
		body := []byte(`{"project_id":1,"amount":"250.00","description":"travel","expense_date":"2026-08-01T00:00:00Z","approver_ids":[10]}`)

		It("returns 201 with the created expense", func() {
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses", body, 5))
			Expect(recorder.Code).To(Equal(http.StatusCreated))

			var resp expense.Expense
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).NotTo(HaveOccurred())
			Expect(resp.ID).To(Equal(int64(1)))
		})

		It("returns 401 without an actor", func() {
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses", body, 0))
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})

		It("returns 400 for a malformed body", func() {
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses", []byte(`{`), 5))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps an invalid chain error to 400", func() {
			service.createError = internal.ErrInvalidChain
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses", body, 5))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GetExpense", func() {
		It("returns the expense", func() {
			router.ServeHTTP(recorder, request(http.MethodGet, "/expenses/1", nil, 0))
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("maps not found to 404", func() {
			service.getError = internal.ErrExpenseNotFound
			router.ServeHTTP(recorder, request(http.MethodGet, "/expenses/99", nil, 0))
			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects a non-numeric id", func() {
			router.ServeHTTP(recorder, request(http.MethodGet, "/expenses/abc", nil, 0))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("ListExpenses", func() {
		It("requires a project_id query parameter", func() {
			router.ServeHTTP(recorder, request(http.MethodGet, "/expenses", nil, 0))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns the project's expenses", func() {
			service.expenses = []*expense.Expense{service.expense}
			router.ServeHTTP(recorder, request(http.MethodGet, "/expenses?project_id=1", nil, 0))
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("RecordDecision", func() {
		body := []byte(`{"step":1,"decision":"approved"}`)

		BeforeEach(func() {
			service.result = &workflow.DecisionResult{ChainComplete: false}
		})

		It("records the decision for the acting approver", func() {
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses/1/decisions", body, 10))
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("returns 401 without an actor", func() {
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses/1/decisions", body, 0))
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})

		It("maps an out-of-order step to 409", func() {
			service.decisionError = internal.ErrStepOutOfOrder
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses/1/decisions", body, 10))
			Expect(recorder.Code).To(Equal(http.StatusConflict))
		})

		It("maps a wrong approver to 403", func() {
			service.decisionError = internal.ErrNotAuthorized
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses/1/decisions", body, 99))
			Expect(recorder.Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("Resubmit", func() {
		body := []byte(`{"approver_ids":[10,20]}`)

		It("resubmits for the acting submitter", func() {
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses/1/resubmit", body, 5))
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("maps an invalid status to 400", func() {
			service.resubmitError = internal.ErrInvalidStatus
			router.ServeHTTP(recorder, request(http.MethodPost, "/expenses/1/resubmit", body, 5))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
