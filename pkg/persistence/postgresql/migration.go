package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Enrollment ledger
			CREATE TABLE enrollments (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				definition_version INT NOT NULL,
				tenant_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				cursor_position INT NOT NULL DEFAULT -1,
				state VARCHAR(32) NOT NULL CHECK (state IN ('running', 'waiting', 'succeeded', 'exited_by_goal', 'failed', 'cancelled')),
				wake_at TIMESTAMP WITH TIME ZONE,
				wait_event_type VARCHAR(255) NOT NULL DEFAULT '',
				attempt INT NOT NULL DEFAULT 0,
				lease_owner VARCHAR(255) NOT NULL DEFAULT '',
				lease_until TIMESTAMP WITH TIME ZONE,
				context JSONB,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				version BIGINT NOT NULL
			);

			-- One active enrollment per (workflow, contact)
			CREATE UNIQUE INDEX uq_enrollments_active ON enrollments(workflow_id, contact_id)
				WHERE state IN ('running', 'waiting');
			CREATE INDEX idx_enrollments_due ON enrollments(state, wake_at);
			CREATE INDEX idx_enrollments_contact ON enrollments(tenant_id, contact_id);
		`,
		2: `
			-- Action attempt audit trail and goal achievements
			CREATE TABLE action_execution_records (
				id VARCHAR(255) PRIMARY KEY,
				enrollment_id VARCHAR(255) NOT NULL REFERENCES enrollments(id),
				action_id VARCHAR(255) NOT NULL,
				action_type VARCHAR(64) NOT NULL,
				attempt INT NOT NULL,
				status VARCHAR(32) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				error_kind VARCHAR(32) NOT NULL DEFAULT '',
				error_detail TEXT,
				output JSONB,
				UNIQUE (enrollment_id, action_id, attempt)
			);

			CREATE INDEX idx_action_execution_records_enrollment ON action_execution_records(enrollment_id);

			CREATE TABLE goal_achievements (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				enrollment_id VARCHAR(255) NOT NULL REFERENCES enrollments(id),
				contact_id VARCHAR(255) NOT NULL,
				goal_id VARCHAR(255) NOT NULL,
				achieved_at TIMESTAMP WITH TIME ZONE NOT NULL,
				event JSONB,
				UNIQUE (enrollment_id, goal_id)
			);
		`,
		3: `
			-- Webhook delivery log
			CREATE TABLE webhook_deliveries (
				id VARCHAR(255) PRIMARY KEY,
				webhook JSONB NOT NULL,
				payload JSONB NOT NULL,
				status VARCHAR(32) NOT NULL,
				max_attempts INT NOT NULL,
				enrollment_id VARCHAR(255) NOT NULL DEFAULT '',
				redelivery_of VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE webhook_delivery_attempts (
				id VARCHAR(255) PRIMARY KEY,
				delivery_id VARCHAR(255) NOT NULL REFERENCES webhook_deliveries(id),
				webhook_id VARCHAR(255) NOT NULL,
				payload JSONB NOT NULL,
				attempt_number INT NOT NULL,
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				attempted_at TIMESTAMP WITH TIME ZONE,
				response_status INT,
				outcome VARCHAR(32) NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				lease_until TIMESTAMP WITH TIME ZONE,
				UNIQUE (delivery_id, attempt_number)
			);

			CREATE INDEX idx_webhook_delivery_attempts_due ON webhook_delivery_attempts(outcome, scheduled_at);
		`,
	}
}
