package job

import (
	"database/sql"
)

// JobScanArgs holds the nullable variables needed for scanning a job from a
// database row.
type JobScanArgs struct {
	Tool         sql.NullString
	ToolListJSON sql.NullString
	OutputPath   sql.NullString
	ErrorMessage sql.NullString
	Progress     sql.NullInt64
}

// GetJobScanArgs returns a JobScanArgs struct with all variables ready for scanning
func GetJobScanArgs() *JobScanArgs {
	return &JobScanArgs{}
}

// StandardJobSelectColumns returns the column list matching GetJobScanTargets.
func StandardJobSelectColumns() string {
	return `id, status, plugin_id, tool, tool_list, job_type,
		input_path, output_path, error_message, progress,
		created_at, updated_at`
}

// GetJobScanTargets returns scan destinations for the job and scan args,
// in the order of StandardJobSelectColumns.
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.Status,
		&job.PluginID,
		&args.Tool,
		&args.ToolListJSON,
		&job.Type,
		&job.InputPath,
		&args.OutputPath,
		&args.ErrorMessage,
		&args.Progress,
		&job.CreatedAt,
		&job.UpdatedAt,
	}
}

// ProcessJobScanArgs populates the job's optional fields from the scanned
// nullable values. Returns an error if the tool list JSON is malformed.
func ProcessJobScanArgs(job *Job, args *JobScanArgs) error {
	if args.Tool.Valid {
		tool := args.Tool.String
		job.Tool = &tool
	}
	if args.ToolListJSON.Valid {
		tools, err := UnmarshalToolList(args.ToolListJSON.String)
		if err != nil {
			return err
		}
		job.ToolList = tools
	}
	if args.OutputPath.Valid {
		outputPath := args.OutputPath.String
		job.OutputPath = &outputPath
	}
	if args.ErrorMessage.Valid {
		errorMessage := args.ErrorMessage.String
		job.ErrorMessage = &errorMessage
	}
	if args.Progress.Valid {
		progress := int(args.Progress.Int64)
		job.Progress = &progress
	}
	return nil
}
