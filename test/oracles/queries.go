// Package oracles holds SQL checks that must return no rows at any point of
// a stress run.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_temporary_id_persisted",
			SQL: `SELECT id FROM community_posts WHERE id LIKE 'temp-%'
                  UNION ALL SELECT id FROM community_comments WHERE id LIKE 'temp-%'
                  UNION ALL SELECT id FROM drawings WHERE id LIKE 'temp-%'`,
		},
		{
			Name: "O2_unbound_mutation_key",
			SQL:  `SELECT table_name, key FROM mutation_keys WHERE record_id IS NULL`,
		},
		{
			Name: "O3_record_created_twice",
			SQL: `SELECT table_name, record_id, COUNT(*) FROM mutation_keys
                  GROUP BY table_name, record_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_orphan_comment",
			SQL: `SELECT c.id FROM community_comments c
                  LEFT JOIN community_posts p ON p.id = c.post_id
                  WHERE p.id IS NULL`,
		},
		{
			Name: "O5_blank_content",
			SQL: `SELECT id FROM community_posts WHERE length(btrim(content)) = 0
                  UNION ALL SELECT id FROM community_comments WHERE length(btrim(content)) = 0`,
		},
		{
			Name: "O6_drawing_paths_not_array",
			SQL:  `SELECT id FROM drawings WHERE jsonb_typeof(paths::jsonb) <> 'array'`,
		},
		{
			Name: "O7_updated_before_created",
			SQL: `SELECT id FROM community_posts WHERE updated_at < created_at
                  UNION ALL SELECT id FROM drawings WHERE updated_at < created_at`,
		},
		{
			Name: "O8_missing_owner",
			SQL: `SELECT id FROM community_posts WHERE user_email = ''
                  UNION ALL SELECT id FROM community_comments WHERE user_email = ''
                  UNION ALL SELECT id FROM drawings WHERE user_email = ''`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
