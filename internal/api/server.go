package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"workdeck/internal/domain"
	"workdeck/internal/store"
	"workdeck/internal/tasks"
)

type Server struct {
	repo  store.Repository
	tasks *tasks.Service
}

func NewServer(repo store.Repository, taskSvc *tasks.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	s := &Server{repo: repo, tasks: taskSvc}

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/projects", s.createProject)
	r.Get("/api/projects", s.listProjects)
	r.Get("/api/projects/{id}", s.getProject)
	r.Put("/api/projects/{id}", s.updateProject)
	r.Delete("/api/projects/{id}", s.deleteProject)

	r.Post("/api/projects/{projectId}/tasks", s.createTask)
	r.Get("/api/projects/{projectId}/tasks", s.listProjectTasks)

	r.Get("/api/users", s.listUsers)
	r.Get("/api/users/search", s.searchUsers)

	r.Get("/api/tasks", s.listTasks)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Put("/api/tasks/{id}", s.updateTask)
	r.Patch("/api/tasks/{id}/status", s.updateTaskStatus)
	r.Delete("/api/tasks/{id}", s.deleteTask)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

const dateLayout = "2006-01-02"

type taskResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Priority    int    `json:"priority"`
	DueDate     string `json:"due_date"`
	Assignee    string `json:"assignee"`
	Status      string `json:"status"`
	Version     int64  `json:"version"`
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toTaskResponse(t domain.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Name:        t.Name,
		Priority:    t.Priority,
		DueDate:     t.DueDate.Format(dateLayout),
		Assignee:    t.Assignee,
		Status:      string(t.Status),
		Version:     t.Version,
		ProjectID:   t.ProjectID,
		ProjectName: t.ProjectName,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
}

type projectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TaskCount   int64  `json:"task_count"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toProjectResponse(p domain.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		TaskCount:   p.TaskCount,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

type pagedResponse struct {
	Content       []taskResponse `json:"content"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	TotalElements int64          `json:"total_elements"`
	TotalPages    int64          `json:"total_pages"`
	Last          bool           `json:"last"`
}

func toPagedResponse(items []domain.Task, total int64, page, size int) pagedResponse {
	content := make([]taskResponse, 0, len(items))
	for _, t := range items {
		content = append(content, toTaskResponse(t))
	}
	totalPages := (total + int64(size) - 1) / int64(size)
	return pagedResponse{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          int64(page) >= totalPages-1,
	}
}

type createTaskReq struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	DueDate  string `json:"due_date"`
	Assignee string `json:"assignee"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		badRequest(w, "name is required and must not exceed 255 characters")
		return
	}
	if req.Priority < 1 || req.Priority > 5 {
		badRequest(w, "priority must be between 1 and 5")
		return
	}
	if req.Assignee == "" {
		badRequest(w, "assignee is required")
		return
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		badRequest(w, "due_date must be formatted as "+dateLayout)
		return
	}

	t, err := s.tasks.Create(r.Context(), projectID, tasks.CreateTask{
		Name:     req.Name,
		Priority: req.Priority,
		DueDate:  due,
		Assignee: req.Assignee,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

type updateTaskReq struct {
	Name     *string `json:"name"`
	Priority *int    `json:"priority"`
	DueDate  *string `json:"due_date"`
	Assignee *string `json:"assignee"`
	Status   *string `json:"status"`
}

func (r updateTaskReq) toUpdate() (domain.TaskUpdate, error) {
	var u domain.TaskUpdate
	if r.Name != nil {
		if *r.Name == "" || len(*r.Name) > 255 {
			return u, fmt.Errorf("name must be non-empty and not exceed 255 characters")
		}
		u.Name = r.Name
	}
	if r.Priority != nil {
		if *r.Priority < 1 || *r.Priority > 5 {
			return u, fmt.Errorf("priority must be between 1 and 5")
		}
		u.Priority = r.Priority
	}
	if r.DueDate != nil {
		due, err := time.Parse(dateLayout, *r.DueDate)
		if err != nil {
			return u, fmt.Errorf("due_date must be formatted as %s", dateLayout)
		}
		u.DueDate = &due
	}
	if r.Assignee != nil {
		u.Assignee = r.Assignee
	}
	if r.Status != nil {
		st := domain.Status(*r.Status)
		if !domain.ValidStatus(st) {
			return u, fmt.Errorf("status must be one of PENDING, IN_PROGRESS, COMPLETED")
		}
		u.Status = &st
	}
	return u, nil
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	u, err := req.toUpdate()
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	t, err := s.tasks.Update(r.Context(), id, u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (s *Server) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	st := domain.Status(req.Status)
	if !domain.ValidStatus(st) {
		badRequest(w, "status must be one of PENDING, IN_PROGRESS, COMPLETED")
		return
	}

	t, err := s.tasks.UpdateStatus(r.Context(), id, st)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q, page, size, err := parseTaskQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	items, total, err := s.tasks.List(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPagedResponse(items, total, page, size))
}

func (s *Server) listProjectTasks(w http.ResponseWriter, r *http.Request) {
	q, page, size, err := parseTaskQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	items, total, err := s.tasks.ListForProject(r.Context(), chi.URLParam(r, "projectId"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPagedResponse(items, total, page, size))
}

func parseTaskQuery(r *http.Request) (store.TaskQuery, int, int, error) {
	var q store.TaskQuery
	qs := r.URL.Query()

	if v := qs.Get("status"); v != "" {
		st := domain.Status(v)
		if !domain.ValidStatus(st) {
			return q, 0, 0, fmt.Errorf("status must be one of PENDING, IN_PROGRESS, COMPLETED")
		}
		q.Status = &st
	}
	q.Name = qs.Get("taskName")
	if v := qs.Get("startDate"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return q, 0, 0, fmt.Errorf("startDate must be formatted as %s", dateLayout)
		}
		q.StartDate = &d
	}
	if v := qs.Get("endDate"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return q, 0, 0, fmt.Errorf("endDate must be formatted as %s", dateLayout)
		}
		q.EndDate = &d
	}
	q.SortBy = qs.Get("sortBy")
	q.Order = qs.Get("order")

	page := 0
	if v := qs.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, 0, 0, fmt.Errorf("page must be a non-negative integer")
		}
		page = n
	}
	size := 20
	if v := qs.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, 0, 0, fmt.Errorf("size must be a positive integer")
		}
		size = n
	}
	if size > 100 {
		size = 100
	}
	q.Page = page
	q.Size = size
	return q, page, size, nil
}

type projectReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		badRequest(w, "name is required")
		return
	}
	p := domain.Project{Name: *req.Name}
	if req.Description != nil {
		p.Description = *req.Description
	}

	created, err := s.repo.CreateProject(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectResponse(created))
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.repo.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.repo.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req projectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}

	updated, err := s.repo.UpdateProject(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(updated))
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

func toUserResponses(users []domain.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{ID: u.ID, Username: u.Username, Email: u.Email, FullName: u.FullName})
	}
	return out
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

type errorResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrProjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{
		Status:    status,
		Message:   err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Status:    http.StatusBadRequest,
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
