package analytics

import (
	"context"
	"log/slog"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS upload_job_analytics (
    job_uuid UUID PRIMARY KEY,
    job_start_time TIMESTAMPTZ NOT NULL,
    job_end_time TIMESTAMPTZ,
    final_status TEXT,
    error_message TEXT,
    output_size_bytes BIGINT,
    total_processing_duration_seconds DOUBLE PRECISION,
    initial_files_selected_count INTEGER,
    filtered_files_processed_count INTEGER,
    upload_folder_size_bytes BIGINT,
    backend_upload_handling_duration_seconds DOUBLE PRECISION,
    code_analysis_duration_seconds DOUBLE PRECISION
);`,
	`CREATE TABLE IF NOT EXISTS repo_job_analytics (
    job_uuid UUID PRIMARY KEY,
    job_start_time TIMESTAMPTZ NOT NULL,
    job_end_time TIMESTAMPTZ,
    final_status TEXT,
    error_message TEXT,
    output_size_bytes BIGINT,
    total_processing_duration_seconds DOUBLE PRECISION,
    repo_url TEXT,
    cloned_repo_name TEXT,
    clone_successful BOOLEAN,
    cloned_repo_size_bytes BIGINT,
    git_clone_duration_seconds DOUBLE PRECISION,
    code_analysis_duration_seconds DOUBLE PRECISION
);`,
	`CREATE TABLE IF NOT EXISTS website_job_analytics (
    job_uuid UUID PRIMARY KEY,
    job_start_time TIMESTAMPTZ NOT NULL,
    job_end_time TIMESTAMPTZ,
    final_status TEXT,
    error_message TEXT,
    output_size_bytes BIGINT,
    total_processing_duration_seconds DOUBLE PRECISION,
    website_url TEXT,
    crawl_max_depth_setting INTEGER,
    crawl_max_pages_setting INTEGER,
    crawl_stay_on_domain_setting BOOLEAN,
    crawl_include_patterns_setting TEXT,
    crawl_exclude_patterns_setting TEXT,
    crawl_keywords_setting TEXT,
    pages_actually_crawled_count INTEGER,
    website_crawl_duration_seconds DOUBLE PRECISION
);`,
}

// EnsureSchema creates the analytics tables if they do not exist. Like
// every other analytics operation, failure disables the recorder rather
// than propagating.
func (r *Recorder) EnsureSchema(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			r.logger.Error("failed to ensure analytics schema, analytics disabled", slog.String("error", err.Error()))
			r.pool.Close()
			r.pool = nil
			return
		}
	}
}
