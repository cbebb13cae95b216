// Package httpapi implements the HTTP surface of spec.md §6, adapted
// from the teacher's Handlers struct: a thin translation layer over the
// Admission, Submission, Job State Store, and Bundle Store use cases.
package httpapi

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/anomaly-lab/jobctl/internal/admission"
	"github.com/anomaly-lab/jobctl/internal/apperr"
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
	"github.com/anomaly-lab/jobctl/internal/jobstore"
	"github.com/anomaly-lab/jobctl/internal/submission"
)

type Handlers struct {
	Submissions *submission.Service
	Admission   *admission.Service
	Jobs        jobstore.Store
	Bundles     bundlestore.Store
	TrackingURI string
	StartTime   time.Time
}

func New(submissions *submission.Service, adm *admission.Service, jobs jobstore.Store, bundles bundlestore.Store, trackingURI string) *Handlers {
	return &Handlers{
		Submissions: submissions,
		Admission:   adm,
		Jobs:        jobs,
		Bundles:     bundles,
		TrackingURI: trackingURI,
		StartTime:   time.Now(),
	}
}

// userID reads the bearer token installed into locals by the auth
// middleware; the token string itself is the user id (spec.md §6).
func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

func writeErr(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	msg := err.Error()
	if status == 500 {
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": true, "message": msg})
}

// CreateSubmission implements POST /submissions.
func (h *Handlers) CreateSubmission(c *fiber.Ctx) error {
	uid := userID(c)
	form, err := c.MultipartForm()
	if err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindInvalidName, "invalid multipart form", err))
	}

	files := make(map[string][]byte)
	for _, headers := range form.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return writeErr(c, apperr.Wrap(apperr.KindInternal, "open uploaded file", err))
			}
			data := make([]byte, fh.Size)
			if _, err := f.Read(data); err != nil && fh.Size > 0 {
				f.Close()
				return writeErr(c, apperr.Wrap(apperr.KindInternal, "read uploaded file", err))
			}
			f.Close()
			files[fh.Filename] = data
		}
	}

	entrypoint := c.FormValue("entrypoint", "main.py")
	configFile := c.FormValue("config_file", "config.yaml")

	sid, err := h.Submissions.Create(uid, files, entrypoint, configFile, nil)
	if err != nil {
		return writeErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"submission_id": sid, "user_id": uid})
}

// AppendFile implements POST /submissions/{sid}/files.
func (h *Handlers) AppendFile(c *fiber.Ctx) error {
	uid := userID(c)
	sid := c.Params("sid")

	fh, err := c.FormFile("file")
	if err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindInvalidName, "missing file", err))
	}
	f, err := fh.Open()
	if err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindInternal, "open uploaded file", err))
	}
	defer f.Close()
	data := make([]byte, fh.Size)
	if _, err := f.Read(data); err != nil && fh.Size > 0 {
		return writeErr(c, apperr.Wrap(apperr.KindInternal, "read uploaded file", err))
	}

	if err := h.Submissions.Append(sid, fh.Filename, data, uid); err != nil {
		return writeErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"filename": fh.Filename, "size": fh.Size})
}

// ListFiles implements GET /submissions/{sid}/files.
func (h *Handlers) ListFiles(c *fiber.Ctx) error {
	uid := userID(c)
	sid := c.Params("sid")

	files, err := h.Submissions.List(sid, uid)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(fiber.Map{"files": files})
}

// CreateJob implements POST /jobs.
func (h *Handlers) CreateJob(c *fiber.Ctx) error {
	uid := userID(c)
	var body struct {
		SubmissionID string                 `json:"submission_id"`
		Config       map[string]interface{} `json:"config"`
	}
	if err := c.BodyParser(&body); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindInvalidName, "invalid body", err))
	}

	jid, err := h.Admission.EnqueueJob(c.Context(), body.SubmissionID, uid, body.Config)
	if err != nil {
		return writeErr(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jid})
}

// JobStatus implements GET /jobs/{jid}/status.
func (h *Handlers) JobStatus(c *fiber.Ctx) error {
	jid := c.Params("jid")
	rec, err := h.Jobs.Get(c.Context(), jid)
	if err != nil {
		return writeErr(c, err)
	}
	if rec == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(rec)
}

// JobLogs implements GET /jobs/{jid}/logs.
func (h *Handlers) JobLogs(c *fiber.Ctx) error {
	jid := c.Params("jid")
	tail := 0
	if v := c.Query("tail_lines"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			tail = n
		}
	}

	logs, err := h.Bundles.Logs(jid, tail)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return c.JSON(fiber.Map{"job_id": jid, "logs": ""})
		}
		return writeErr(c, err)
	}
	return c.JSON(fiber.Map{"job_id": jid, "logs": logs})
}

// JobResults implements GET /jobs/{jid}/results.
func (h *Handlers) JobResults(c *fiber.Ctx) error {
	jid := c.Params("jid")
	rec, err := h.Jobs.Get(c.Context(), jid)
	if err != nil {
		return writeErr(c, err)
	}
	if rec == nil || rec.RunID == "" {
		return c.JSON(fiber.Map{"job_id": jid, "run_id": "", "mlflow_ui_link": "", "mlflow_rest_link": ""})
	}
	return c.JSON(fiber.Map{
		"job_id":           jid,
		"run_id":           rec.RunID,
		"mlflow_ui_link":   h.TrackingURI + "/#/experiments/0/runs/" + rec.RunID,
		"mlflow_rest_link": h.TrackingURI + "/api/2.0/mlflow/runs/get?run_id=" + rec.RunID,
	})
}

func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"uptime": time.Since(h.StartTime).String(),
	})
}
