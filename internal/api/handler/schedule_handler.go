package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"timetable/backend/internal/dto"
	"timetable/backend/internal/service"
	pkgerrors "timetable/backend/pkg/errors"
	"timetable/backend/pkg/response"
)

// ScheduleHandler 课表模块 HTTP 处理器
type ScheduleHandler struct {
	scheduleSvc service.ScheduleService
}

// NewScheduleHandler 创建 ScheduleHandler
func NewScheduleHandler(scheduleSvc service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc}
}

// ────────────────────── 学期 ──────────────────────

// GetTerm 获取学期信息
// GET /api/v1/term
func (h *ScheduleHandler) GetTerm(c *gin.Context) {
	term, err := h.scheduleSvc.GetTerm(c.Request.Context())
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, term)
}

// UpdateTerm 修改学期起始时间
// PUT /api/v1/term
func (h *ScheduleHandler) UpdateTerm(c *gin.Context) {
	var req dto.UpdateTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	resp, err := h.scheduleSvc.UpdateTerm(c.Request.Context(), &req)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, resp)
}

// Save 手动保存课表
// POST /api/v1/save
func (h *ScheduleHandler) Save(c *gin.Context) {
	if err := h.scheduleSvc.Save(c.Request.Context()); err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, nil)
}

// ────────────────────── 课程 ──────────────────────

// ListCourses 课程列表（按注册顺序）
// GET /api/v1/courses
func (h *ScheduleHandler) ListCourses(c *gin.Context) {
	courses, err := h.scheduleSvc.ListCourses(c.Request.Context())
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OKList(c, courses, len(courses))
}

// GetCourse 课程详情
// GET /api/v1/courses/:id
func (h *ScheduleHandler) GetCourse(c *gin.Context) {
	course, err := h.scheduleSvc.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, course)
}

// CreateCourse 新建课程；任一时间模板冲突则整体拒绝
// POST /api/v1/courses
func (h *ScheduleHandler) CreateCourse(c *gin.Context) {
	var req dto.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	course, err := h.scheduleSvc.CreateCourse(c.Request.Context(), &req)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateCourse 整体替换课程
// PUT /api/v1/courses/:id
func (h *ScheduleHandler) UpdateCourse(c *gin.Context) {
	var req dto.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	course, err := h.scheduleSvc.UpdateCourse(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, course)
}

// EditCourse 按顺序应用编辑命令
// PATCH /api/v1/courses/:id
func (h *ScheduleHandler) EditCourse(c *gin.Context) {
	var req dto.EditCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	course, err := h.scheduleSvc.EditCourse(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, course)
}

// DeleteCourse 删除课程
// DELETE /api/v1/courses/:id
func (h *ScheduleHandler) DeleteCourse(c *gin.Context) {
	if err := h.scheduleSvc.DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, nil)
}

// ────────────────────── 时间模板 ──────────────────────

// ListTemplates 时间模板列表
// GET /api/v1/templates?column=0
func (h *ScheduleHandler) ListTemplates(c *gin.Context) {
	var q dto.TemplateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	templates, err := h.scheduleSvc.ListTemplates(c.Request.Context(), q.Column)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OKList(c, templates, len(templates))
}

// AddTemplate 为已有课程追加时间模板
// POST /api/v1/templates
func (h *ScheduleHandler) AddTemplate(c *gin.Context) {
	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	tpl, err := h.scheduleSvc.AddTemplate(c.Request.Context(), &req)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.Created(c, tpl)
}

// DeleteTemplate 删除时间模板
// DELETE /api/v1/templates/:id
func (h *ScheduleHandler) DeleteTemplate(c *gin.Context) {
	if err := h.scheduleSvc.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, nil)
}

// ────────────────────── 查询 ──────────────────────

// GetCell 单元格查询
// GET /api/v1/cells?at=... 或 ?column=&slot=&week=
func (h *ScheduleHandler) GetCell(c *gin.Context) {
	var q dto.CellQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	cell, err := h.scheduleSvc.GetCell(c.Request.Context(), &q)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, cell)
}

// GetWeekView 周视图
// GET /api/v1/weeks/:week
func (h *ScheduleHandler) GetWeekView(c *gin.Context) {
	week, err := strconv.Atoi(c.Param("week"))
	if err != nil {
		response.BadRequest(c, 10001, "周次必须为整数")
		return
	}

	view, err := h.scheduleSvc.GetWeekView(c.Request.Context(), week)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, view)
}

// ────────────────────── DDL ──────────────────────

// ListDeadlines DDL 列表
// GET /api/v1/deadlines?from=&to=
func (h *ScheduleHandler) ListDeadlines(c *gin.Context) {
	var q dto.DeadlineQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	ddls, err := h.scheduleSvc.ListDeadlines(c.Request.Context(), &q)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OKList(c, ddls, len(ddls))
}

// CreateDeadline 新增 DDL
// POST /api/v1/deadlines
func (h *ScheduleHandler) CreateDeadline(c *gin.Context) {
	var req dto.DeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	ddl, err := h.scheduleSvc.CreateDeadline(c.Request.Context(), &req)
	if err != nil {
		handleScheduleError(c, err)
		return
	}
	response.Created(c, ddl)
}

// DeleteDeadline 删除 DDL；DDL 没有 ID，请求体需给出完全一致的四个字段
// DELETE /api/v1/deadlines
func (h *ScheduleHandler) DeleteDeadline(c *gin.Context) {
	var req dto.DeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	if err := h.scheduleSvc.DeleteDeadline(c.Request.Context(), &req); err != nil {
		handleScheduleError(c, err)
		return
	}
	response.OK(c, nil)
}

// handleScheduleError 统一课表模块错误映射
func handleScheduleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrConflict):
		response.Conflict(c, 20001, "与已有课程时间冲突", err.Error())
	case errors.Is(err, service.ErrCourseNotFound):
		response.NotFound(c, 20002, "课程不存在")
	case errors.Is(err, service.ErrTemplateNotFound):
		response.NotFound(c, 20003, "时间模板不存在")
	case errors.Is(err, service.ErrDeadlineNotFound):
		response.NotFound(c, 20004, "DDL 不存在")
	case errors.Is(err, service.ErrDeadlineExists):
		response.Conflict(c, 20005, "完全相同的 DDL 已存在", err.Error())
	case errors.Is(err, service.ErrTermConflict):
		response.Conflict(c, 20006, "新学期起点下存在冲突课程", err.Error())
	case errors.Is(err, service.ErrInvalidTime):
		response.ErrorWithDetails(c, http.StatusBadRequest, 20007, "时间格式错误", err.Error())
	case errors.Is(err, pkgerrors.ErrInvalidCourse), errors.Is(err, pkgerrors.ErrInvalidTemplate):
		response.ErrorWithDetails(c, http.StatusBadRequest, 20008, "课程参数非法", err.Error())
	case errors.Is(err, pkgerrors.ErrInvalidDDl):
		response.ErrorWithDetails(c, http.StatusBadRequest, 20012, "DDL 参数非法", err.Error())
	case errors.Is(err, service.ErrInvalidEditCommand), errors.Is(err, pkgerrors.ErrSlotIndex):
		response.ErrorWithDetails(c, http.StatusBadRequest, 20009, "编辑命令非法", err.Error())
	case errors.Is(err, service.ErrInvalidCellQuery):
		response.BadRequest(c, 20010, err.Error())
	case errors.Is(err, service.ErrPersistenceDisabled):
		response.Conflict(c, 20011, "测试数据模式下不保存课表", "")
	default:
		response.InternalError(c)
	}
}
