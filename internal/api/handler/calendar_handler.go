package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"timetable/backend/internal/dto"
	"timetable/backend/internal/service"
	"timetable/backend/pkg/response"
)

// CalendarHandler ICS 导入导出 HTTP 处理器
type CalendarHandler struct {
	calendarSvc service.CalendarService
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(calendarSvc service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarSvc: calendarSvc}
}

// ImportICS 导入 ICS 课表
// POST /api/v1/import/ics
//
// 支持两种方式：
//   - 文件上传: multipart/form-data, field="file"
//   - URL 导入: application/json, body={"url": "..."}
func (h *CalendarHandler) ImportICS(c *gin.Context) {
	// 尝试文件上传方式
	file, _, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		resp, err := h.calendarSvc.ImportICS(c.Request.Context(), file)
		if err != nil {
			handleCalendarError(c, err)
			return
		}
		response.Created(c, resp)
		return
	}

	// 尝试 URL 方式
	var req dto.ImportICSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 也可能是纯 form 提交
		req.URL = c.PostForm("url")
	}
	if req.URL == "" {
		response.BadRequest(c, 21000, "请上传 ICS 文件或提供 ICS URL")
		return
	}

	resp, err := h.calendarSvc.ImportICSFromURL(c.Request.Context(), req.URL)
	if err != nil {
		handleCalendarError(c, err)
		return
	}
	response.Created(c, resp)
}

// ExportICS 导出 ICS
// GET /api/v1/export/ics
func (h *CalendarHandler) ExportICS(c *gin.Context) {
	data, filename, err := h.calendarSvc.ExportICS(c.Request.Context())
	if err != nil {
		handleCalendarError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", data)
}

func handleCalendarError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrICSParse):
		response.ErrorWithDetails(c, http.StatusBadRequest, 21001, "ICS 文件解析失败", err.Error())
	case errors.Is(err, service.ErrICSFetch):
		response.ErrorWithDetails(c, http.StatusBadRequest, 21002, "ICS URL 获取失败", err.Error())
	default:
		handleScheduleError(c, err)
	}
}
