package httpserver

import (
	"net/http"
	"strings"

	"github.com/and161185/taskpulse/internal/convert"
	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/labstack/echo/v4"
)

type healthResponse struct {
	Status string `json:"status"`
}

type putSourceResponse struct {
	SourceID string `json:"source_id"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

// --- sources ---

func (s *Server) handleListSources(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := s.svc.Credentials.List(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToSources(list))
}

func (s *Server) handlePutSource(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var req convert.PutSourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sid, err := s.svc.Credentials.Put(c.Request().Context(), uid, model.SourceType(req.SourceType), req.Payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, putSourceResponse{SourceID: sid.String()})
}

func (s *Server) handleDeleteSource(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	sid, err := convert.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	if err := s.svc.Credentials.Delete(c.Request().Context(), uid, sid); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSync(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	sid, err := convert.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	mode, ok := model.ParseSyncMode(c.QueryParam("mode"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be backfill or incremental")
	}
	res, err := s.svc.Sync.TriggerSync(c.Request().Context(), uid, sid, mode)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToSyncResult(res))
}

// --- tables ---

func (s *Server) handleListTables(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := s.svc.Descriptors.List(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToTables(list))
}

func (s *Server) handleSelectTable(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var req convert.SelectTableRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sid, err := convert.FromSelectTableRequest(req)
	if err != nil {
		return err
	}
	d, err := s.svc.Descriptors.Select(c.Request().Context(), uid, sid, req.ID, req.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToTable(*d))
}

func (s *Server) handleDeselectTable(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := s.svc.Descriptors.Deselect(c.Request().Context(), uid, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePutMapping(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var m model.PropertyMapping
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.svc.Descriptors.SetMapping(c.Request().Context(), uid, c.Param("id"), m); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) handleGetMapping(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	m, err := s.svc.Descriptors.GetMapping(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// --- tasks & KPIs ---

func (s *Server) handleListTasks(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	tasks, err := s.svc.KPIs.ListTasks(c.Request().Context(), uid, strings.TrimSpace(c.QueryParam("table")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToTasks(tasks))
}

func (s *Server) handleWeeklyKPIs(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	week, err := convert.ParseWeek(c.QueryParam("week"))
	if err != nil {
		return err
	}
	snap, err := s.svc.KPIs.GetWeeklyKPIs(c.Request().Context(), uid, week, strings.TrimSpace(c.QueryParam("table")))
	if err != nil {
		return err
	}
	if snap == nil {
		return errs.ErrNotFound
	}
	return c.JSON(http.StatusOK, convert.ToWeeklySnapshot(*snap))
}
