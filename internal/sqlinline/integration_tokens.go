package sqlinline

const QSelectIntegrationToken = `--sql b7fbaa75-6b3f-404f-aa41-52639f613667
select token
from integration_tokens
where provider = $1::text;
`

const QUpsertIntegrationToken = `--sql 2f4384c5-c03c-41e7-bbd0-bdfb9a443a11
insert into integration_tokens(provider, token, properties, updated_at)
values ($1::text, $2::text, $3::jsonb, now())
on conflict (provider) do update
set token = excluded.token, properties = excluded.properties, updated_at = now();
`
