package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"minewatch-server/internal/modules/sensors/alert"
	"minewatch-server/internal/modules/sensors/export"
	"minewatch-server/internal/modules/sensors/mapview"
	"minewatch-server/internal/modules/sensors/service"
	"minewatch-server/internal/modules/sensors/session"
	"minewatch-server/internal/modules/sensors/sites"
	"minewatch-server/internal/modules/sensors/types"
	"minewatch-server/internal/modules/sensors/views"
	"minewatch-server/internal/telemetry"
	"minewatch-server/internal/utils"
)

func (c *sensorControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	c.renderDashboard(w, session.FromValues(r.URL.Query()), nil)
}

func (c *sensorControllerImpl) renderDashboard(w http.ResponseWriter, state session.State, flash *views.Flash) {
	all, err := c.store.LoadAll()
	if err != nil {
		slog.Error("dashboard: load readings failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	data := views.NewDashboardData(state, all, c.now())
	data.Flash = flash
	utils.WriteHTML(w, func(buf *bytes.Buffer) error {
		return views.RenderDashboard(buf, data)
	})
}

// handlePredict classifies and stores the submitted form, then re-renders the
// dashboard with the outcome. A failed alert is part of the outcome; only a
// failed classification or store write shows an error flash.
func (c *sensorControllerImpl) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid form")
		return
	}
	state := session.FromValues(r.Form)
	out, err := c.service.Submit(r.Context(), service.Submission{
		Site:   state.Site,
		Values: state.Values,
		Source: service.SourceHTTP,
	})
	flash := &views.Flash{Site: state.Site}
	if err != nil {
		slog.Error("predict: submit failed", "site", state.Site, "error", err)
		flash.Error = fmt.Sprintf("Gagal memproses data: %v", err)
	} else {
		flash.Status = out.Reading.Status
		flash.Dangerous = out.Dangerous
		flash.Alert = out.Alert
	}
	c.renderDashboard(w, state, flash)
}

func (c *sensorControllerImpl) handleStatusPartial(w http.ResponseWriter, r *http.Request) {
	state := session.FromValues(r.URL.Query())
	rows, err := c.store.LoadSite(state.Site)
	if err != nil {
		slog.Error("status partial: load readings failed", "site", state.Site, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	data := views.NewStatusPanel(state, rows)
	utils.WriteHTML(w, func(buf *bytes.Buffer) error {
		return views.RenderStatusPartial(buf, data)
	})
}

func (c *sensorControllerImpl) handleForecastPartial(w http.ResponseWriter, r *http.Request) {
	state := session.FromValues(r.URL.Query())
	rows, err := c.store.LoadSite(state.Site)
	if err != nil {
		slog.Error("forecast partial: load readings failed", "site", state.Site, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	data := views.NewForecastPanel(state, rows)
	utils.WriteHTML(w, func(buf *bytes.Buffer) error {
		return views.RenderForecastPartial(buf, data)
	})
}

func (c *sensorControllerImpl) handleMapPartial(w http.ResponseWriter, r *http.Request) {
	all, err := c.store.LoadAll()
	if err != nil {
		slog.Error("map partial: load readings failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	data := views.NewMapPanel(all)
	utils.WriteHTML(w, func(buf *bytes.Buffer) error {
		return views.RenderMapPartial(buf, data)
	})
}

func (c *sensorControllerImpl) handleExport(w http.ResponseWriter, r *http.Request) {
	site, err := parseSiteQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if site == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing 'site'")
		return
	}
	rows, err := c.store.LoadSite(site)
	if err != nil {
		slog.Error("export: load readings failed", "site", site, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	body, err := export.Readings(rows)
	if err != nil {
		slog.Error("export: build workbook failed", "site", site, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to build workbook")
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="riwayat-%s.xlsx"`, telemetry.Slug(site)))
	if _, err := w.Write(body); err != nil {
		slog.Error("export: write response failed", "error", err)
	}
}

func (c *sensorControllerImpl) handleSites(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, sites.Sorted())
}

func (c *sensorControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	site, err := parseSiteQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rows []types.Reading
	if site == "" {
		rows, err = c.store.LoadAll()
	} else {
		rows, err = c.store.LoadSite(site)
	}
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []types.Reading{}
	}
	utils.WriteJSON(w, http.StatusOK, tail(rows, limit))
}

func (c *sensorControllerImpl) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	var t telemetry.Telemetry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&t); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := t.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub := service.Submission{Site: t.Site, Values: t.Values(), Source: service.SourceHTTP}
	if t.Timestamp != nil {
		sub.Time = *t.Timestamp
	}
	out, err := c.service.Submit(r.Context(), sub)
	switch {
	case errors.Is(err, service.ErrUnknownSite), errors.Is(err, service.ErrInvalidValues):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("create reading: submit failed", "site", t.Site, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to store reading")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, out)
}

func (c *sensorControllerImpl) handleMarkers(w http.ResponseWriter, r *http.Request) {
	latest, err := c.store.LatestBySite()
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, mapview.Build(latest))
}

func (c *sensorControllerImpl) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	attempts := []alert.Attempt{}
	if c.attempts != nil {
		list, err := c.attempts.ListAttempts(r.Context(), limit)
		if err != nil {
			slog.Error("alerts: list attempts failed", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to load alert attempts")
			return
		}
		attempts = append(attempts, list...)
	}
	utils.WriteJSON(w, http.StatusOK, attempts)
}

func (c *sensorControllerImpl) handleClasses(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string][]string{"classes": c.classes})
}
