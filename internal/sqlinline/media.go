package sqlinline

const QInsertMedia = `--sql 2558f35b-c0ce-444d-a4ef-3be19f74e19b
insert into media(filename, storage_key, mime, bytes, width, height, parent_id, operation, title, metadata, created_by)
values ($1::text, $2::text, $3::text, $4::bigint, $5::int, $6::int, $7::bigint, $8::text, $9::text, $10::jsonb, $11::bigint)
returning id, created_at;
`

const QSelectMedia = `--sql 1e7bb301-9300-44b3-be84-f85ab247f247
select id, filename, storage_key, mime, bytes, width, height, parent_id, operation, title, metadata, created_by, created_at
from media
where id = $1::bigint;
`

const QUpdateMediaMetadata = `--sql 89fae29f-b2a1-41c1-8a57-d9a99b80430b
update media
set metadata = (metadata || $2::jsonb) - $3::text[]
where id = $1::bigint;
`
