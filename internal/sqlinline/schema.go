package sqlinline

const QCreateSchema = `--sql 4eb2b092-e6e4-40cb-8620-560123450398
create table if not exists media (
  id          bigserial primary key,
  filename    text not null,
  storage_key text not null,
  mime        text not null default '',
  bytes       bigint not null default 0,
  width       int not null default 0,
  height      int not null default 0,
  parent_id   bigint references media(id) on delete set null,
  operation   text not null default '',
  title       text not null default '',
  metadata    jsonb not null default '{}'::jsonb,
  created_by  bigint not null default 0,
  created_at  timestamptz not null default now()
);

create table if not exists jobs (
  id            bigserial primary key,
  source_id     bigint not null,
  operation     text not null,
  params        jsonb not null default '{}'::jsonb,
  status        text not null default 'pending'
                check (status in ('pending', 'processing', 'completed', 'failed')),
  result        jsonb not null default '[]'::jsonb,
  error_message text not null default '',
  created_by    bigint not null,
  created_at    timestamptz not null default now(),
  updated_at    timestamptz not null default now()
);

create index if not exists jobs_pending_idx on jobs (created_at) where status = 'pending';

create table if not exists integration_tokens (
  provider   text primary key,
  token      text not null,
  properties jsonb not null default '{}'::jsonb,
  updated_at timestamptz not null default now()
);
`
