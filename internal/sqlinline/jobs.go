package sqlinline

const QInsertJob = `--sql ff4287ef-0fdb-42bf-8fac-ab314c7f41dc
insert into jobs(source_id, operation, params, status, created_by)
values ($1::bigint, $2::text, $3::jsonb, 'pending', $4::bigint)
returning id, created_at, updated_at;
`

const QSelectJob = `--sql cf84f7a2-a4ef-4996-ab93-ce3dfb333fce
select id, source_id, operation, params, status, result, error_message, created_by, created_at, updated_at
from jobs
where id = $1::bigint;
`

// QClaimJob only matches pending rows; concurrent claims for the same id
// serialize on the row lock and at most one of them returns a row.
const QClaimJob = `--sql 1de82e1b-d98e-481c-b507-f0f930612d40
update jobs
set status = 'processing', updated_at = now()
where id = $1::bigint and status = 'pending'
returning id, source_id, operation, params, status, result, error_message, created_by, created_at, updated_at;
`

const QCompleteJob = `--sql 72ad6854-c8d7-4bc9-8b22-ebecbe3a7f1b
update jobs
set status = 'completed', result = $2::jsonb, error_message = '', updated_at = now()
where id = $1::bigint and status = 'processing';
`

const QFailJob = `--sql 6d5ade7e-1d1f-4839-b951-fe555fea82ad
update jobs
set status = 'failed', result = '[]'::jsonb, error_message = $2::text, updated_at = now()
where id = $1::bigint and status = 'processing';
`

const QListPendingJobs = `--sql 743a3af4-0629-4757-a570-a23d1425d78c
select id
from jobs
where status = 'pending'
order by created_at asc
limit $1::int;
`
