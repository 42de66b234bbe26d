package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create runs table
			CREATE TABLE runs (
				workflow_id VARCHAR(255) NOT NULL,
				event_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'success', 'failure', 'terminated')),
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE,
				error TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_id, event_id)
			);

			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_start_time ON runs(start_time);
		`,
		2: `
			-- Step records, ordered by position within their run
			CREATE TABLE run_steps (
				workflow_id VARCHAR(255) NOT NULL,
				event_id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('success', 'failure')),
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE NOT NULL,
				attempts INT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_id, event_id, position),
				FOREIGN KEY (workflow_id, event_id) REFERENCES runs(workflow_id, event_id) ON DELETE CASCADE
			);
		`,
	}
}
