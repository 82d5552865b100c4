package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aither-flow/internal/projects"
	"aither-flow/internal/workspace"
)

// ProjectsResponse wraps the project list.
type ProjectsResponse struct {
	Projects []projects.Project `json:"projects"`
}

type addProjectRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// WorkspaceResponse is returned by POST /api/workspace/default.
type WorkspaceResponse struct {
	Path string `json:"path"`
}

func isProjectValidation(err error) bool {
	return errors.Is(err, projects.ErrNameRequired) ||
		errors.Is(err, projects.ErrPathRequired) ||
		errors.Is(err, projects.ErrDuplicateID)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.projects.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ProjectsResponse{Projects: list})
}

// handleSaveProjects replaces the whole project list.
func (s *Server) handleSaveProjects(w http.ResponseWriter, r *http.Request) {
	var req ProjectsResponse
	if err := decodeJSON(r, &req, false); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	saved, err := s.projects.Save(req.Projects)
	if err != nil {
		if isProjectValidation(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ProjectsResponse{Projects: saved})
}

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	var req addProjectRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	project, err := s.projects.Add(req.Name, req.Path)
	if err != nil {
		if isProjectValidation(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleRemoveProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Remove(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			writeNotFound(w, "Project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeSuccess(w, "Project removed")
}

// handleEnsureWorkspace creates the default workspace if needed and returns
// its path, ready to be used as a project_path.
func (s *Server) handleEnsureWorkspace(w http.ResponseWriter, r *http.Request) {
	dir, err := workspace.EnsureDefault(s.config.ConfigDir)
	if err != nil {
		s.logger.Error("failed to prepare default workspace", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, WorkspaceResponse{Path: dir})
}
