package server

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rogermt/forgesyte-sub004/errors"
	"github.com/rogermt/forgesyte-sub004/job"
	"github.com/rogermt/forgesyte-sub004/plugin"
)

// sniffLen is how many leading bytes are inspected for content detection.
// The MP4 ftyp box lands within the first dozen bytes of any real file.
const sniffLen = 64

// imageExtensions maps detected image MIME types to stored blob extensions.
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// handleImageSubmit accepts an image upload and enqueues a job.
//
//	POST /v1/image/submit?plugin_id=X&tool=A&tool=B
func (s *Server) handleImageSubmit(w http.ResponseWriter, r *http.Request) {
	s.handleSubmit(w, r, plugin.KindImage)
}

// handleVideoSubmit accepts an MP4 upload and enqueues a job.
//
//	POST /v1/video/submit?plugin_id=X&tool=A
func (s *Server) handleVideoSubmit(w http.ResponseWriter, r *http.Request) {
	s.handleSubmit(w, r, plugin.KindVideo)
}

// handleSubmit is the shared submission path.
// Validation happens against the live registry before any blob is written
// or any row inserted; a bad request leaves no trace.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, kind plugin.InputKind) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	pluginID := r.URL.Query().Get("plugin_id")
	if pluginID == "" {
		writeError(w, http.StatusBadRequest, "plugin_id query parameter is required")
		return
	}
	// Tool order in the URL is the execution order
	tools := r.URL.Query()["tool"]

	if err := s.registry.ValidateRequest(pluginID, tools, kind); err != nil {
		writeErrorFromErr(w, err)
		return
	}

	file, header, err := s.openUpload(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	defer file.Close()

	if header.Size == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	ext, err := s.detectExtension(file, kind)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	var j *job.Job
	if len(tools) == 1 {
		j = job.NewSingle(pluginID, tools[0], "")
	} else {
		j = job.NewMulti(pluginID, tools, "")
	}
	j.InputPath = j.ID + ext

	// Storage failures are transient from the client's view: 503, retry
	// with backoff
	inputKey, err := s.blobs.Put(file, j.InputPath)
	if err != nil {
		s.logger.Errorw("Failed to store upload", "job_id", j.ID, "error", err)
		writeErrorFromErr(w, errors.Wrapf(errors.ErrServiceUnavailable, "failed to store upload: %v", err))
		return
	}
	j.InputPath = inputKey

	if err := s.jobs.Insert(j); err != nil {
		s.blobs.Delete(inputKey)
		s.logger.Errorw("Failed to insert job", "job_id", j.ID, "error", err)
		writeErrorFromErr(w, errors.Wrapf(errors.ErrServiceUnavailable, "failed to create job: %v", err))
		return
	}

	s.logger.Infow("Job submitted",
		"job_id", j.ID,
		"plugin_id", pluginID,
		"job_type", j.Type,
		"tools", tools,
	)
	writeJSON(w, http.StatusOK, map[string]string{"job_id": j.ID})
}

func (s *Server) openUpload(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return nil, nil, errors.Wrap(errors.ErrInvalidRequest, "failed to parse multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrInvalidRequest, "missing 'file' field in multipart form")
	}
	return file, header, nil
}

// detectExtension sniffs the upload's leading bytes and returns the blob
// extension for its kind. The reader is rewound before returning.
func (s *Server) detectExtension(file multipart.File, kind plugin.InputKind) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.Wrap(err, "failed to read upload")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", errors.Wrap(err, "failed to rewind upload")
	}
	buf = buf[:n]

	if kind == plugin.KindVideo {
		if !isMP4(buf) {
			return "", errors.Wrap(errors.ErrInvalidRequest, "uploaded file is not an MP4 video")
		}
		return ".mp4", nil
	}

	detected := http.DetectContentType(buf)
	ext, ok := imageExtensions[detected]
	if !ok {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "unsupported image type: %s", detected)
	}
	return ext, nil
}

// isMP4 checks for the ISO BMFF ftyp box. The box size occupies the first
// four bytes, so "ftyp" starts at offset 4.
func isMP4(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	return bytes.Equal(head[4:8], []byte("ftyp"))
}
