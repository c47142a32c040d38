package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/supertagfs/supertag/pkg/tagtype"
)

func scanTag(row interface{ Scan(...interface{}) error }) (*Tag, error) {
	var t Tag
	var mtime float64
	var perms int64
	if err := row.Scan(&t.ID, &t.Name, &mtime, &t.UID, &t.GID, &perms, &t.NumFiles); err != nil {
		return nil, err
	}
	t.Mtime = floatToTime(mtime)
	t.Permissions = uint32(perms)
	return &t, nil
}

func scanTagGroup(row interface{ Scan(...interface{}) error }) (*TagGroup, error) {
	var g TagGroup
	var mtime float64
	var perms int64
	var tagIDsStr sql.NullString
	if err := row.Scan(&g.ID, &g.Name, &mtime, &g.UID, &g.GID, &perms, &tagIDsStr); err != nil {
		return nil, err
	}
	g.Mtime = floatToTime(mtime)
	g.Permissions = uint32(perms)
	if tagIDsStr.Valid && tagIDsStr.String != "" {
		for _, s := range strings.Split(tagIDsStr.String, ",") {
			if id, err := strconv.ParseInt(s, 10, 64); err == nil {
				g.TagIDs = append(g.TagIDs, id)
			}
		}
	}
	return &g, nil
}

const tagGroupSelect = `SELECT
	tg.id, tg.name, tg.mtime, tg.uid, tg.gid, tg.permissions,
	GROUP_CONCAT(tgt.tag_id, ',')
FROM tag_groups AS tg
LEFT JOIN tag_group_tag AS tgt ON tgt.tg_id=tg.id`

// GetTag looks up a tag by name. Returns (nil, nil) if it doesn't exist.
func (s *Store) GetTag(ctx context.Context, name string) (*Tag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, tag_name, mtime, uid, gid, permissions, num_files FROM tags WHERE tag_name=?`, name)
	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *Store) GetTagByID(ctx context.Context, id int64) (*Tag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, tag_name, mtime, uid, gid, permissions, num_files FROM tags WHERE id=?`, id)
	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// GetTagGroup looks up a tag group by name, with its member tag ids.
func (s *Store) GetTagGroup(ctx context.Context, name string) (*TagGroup, error) {
	row := s.db.QueryRowContext(ctx, tagGroupSelect+` WHERE tg.name=? GROUP BY tg.id`, name)
	g, err := scanTagGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func (s *Store) GetTagGroupByID(ctx context.Context, id int64) (*TagGroup, error) {
	row := s.db.QueryRowContext(ctx, tagGroupSelect+` WHERE tgt.tg_id=? GROUP BY tg.id`, id)
	g, err := scanTagGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func (s *Store) TagExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tags WHERE tag_name=?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) TagGroupExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tag_groups WHERE name=?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) GetTagID(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tags WHERE tag_name=?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	return id, err == nil, err
}

func (s *Store) GetTagGroupID(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tag_groups WHERE name=?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	return id, err == nil, err
}

// GetAllTags returns every tag, ordered by name.
func (s *Store) GetAllTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tag_name, mtime, uid, gid, permissions, num_files FROM tags ORDER BY tag_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetAllTagGroups returns every tag group, ordered by name.
func (s *Store) GetAllTagGroups(ctx context.Context) ([]TagGroup, error) {
	rows, err := s.db.QueryContext(ctx, tagGroupSelect+` GROUP BY tg.id ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TagGroup
	for rows.Next() {
		g, err := scanTagGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// TagGroupsForTags returns every tag group that has at least one of tagIDs
// as a member.
func (s *Store) TagGroupsForTags(ctx context.Context, tagIDs []int64) ([]TagGroup, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	q := tagGroupSelect + fmt.Sprintf(` WHERE tgt.tag_id IN (%s) GROUP BY tg.id`, placeholders(len(tagIDs)))
	rows, err := s.db.QueryContext(ctx, q, argsOf(tagIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TagGroup
	for rows.Next() {
		g, err := scanTagGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// TagNamesForTagGroup returns the member tag names of group, as a set.
func (s *Store) TagNamesForTagGroup(ctx context.Context, group string) (map[string]bool, error) {
	return tagNamesForTagGroup(ctx, s.db, group)
}

func tagNamesForTagGroup(ctx context.Context, q dbQuerier, group string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT tags.tag_name
		FROM tags
		JOIN tag_group_tag AS tgt ON tgt.tag_id=tags.id
		JOIN tag_groups AS tg ON tg.id=tgt.tg_id
		WHERE tg.name=?`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (s *Store) TagIsInGroup(ctx context.Context, group, tag string) (bool, error) {
	names, err := s.TagNamesForTagGroup(ctx, group)
	if err != nil {
		return false, err
	}
	return names[tag], nil
}

// GetTagsInTagGroup returns the full Tag rows that belong to group.
func (s *Store) GetTagsInTagGroup(ctx context.Context, group string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t.id, t.tag_name, t.mtime, t.uid, t.gid, t.permissions, t.num_files
		FROM tags AS t
		JOIN tag_group_tag AS tgt ON tgt.tag_id=t.id
		JOIN tag_groups AS tg ON tgt.tg_id=tg.id
		WHERE tg.name=?`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// intersectionSubquery builds the "file_tag.file_id IN (...)" subquery for
// a token sequence: regular tags and group tokens are INTERSECTed,
// negation tags are EXCEPTed. Only the last token's Group, if any, expands
// to member tags — an earlier Group is always immediately followed by the
// Regular tag it narrowed to, so it contributes nothing new. database/sql
// uses purely positional "?" placeholders, so unlike a numbered-param
// driver this never needs an argument offset.
func intersectionSubquery(ctx context.Context, q dbQuerier, tags []tagtype.TagType) (string, []interface{}, error) {
	var intersects, excepts []string
	for _, t := range tags {
		switch v := t.(type) {
		case tagtype.Regular:
			intersects = append(intersects, v.Tag)
		case tagtype.Negation:
			excepts = append(excepts, v.Tag)
		}
	}

	var groups []string
	if len(tags) > 0 {
		if g, ok := tags[len(tags)-1].(tagtype.Group); ok {
			names, err := tagNamesForTagGroup(ctx, q, g.Tag)
			if err != nil {
				return "", nil, err
			}
			for name := range names {
				groups = append(groups, name)
			}
		}
	}

	const groupTmpl = `
SELECT file_tag.file_id
FROM file_tag
JOIN tags ON tags.id=file_tag.tag_id
WHERE tags.tag_name IN`
	const intersectTmpl = `
SELECT file_tag.file_id
FROM file_tag
JOIN tags ON tags.id=file_tag.tag_id
WHERE tags.tag_name=`

	var args []interface{}

	var intersectSubqueries []string
	for range intersects {
		intersectSubqueries = append(intersectSubqueries, fmt.Sprintf("%s?", intersectTmpl))
	}

	var groupSubqueries []string
	if len(groups) > 0 {
		groupSubqueries = append(groupSubqueries, fmt.Sprintf("%s (%s)", groupTmpl, placeholders(len(groups))))
	}

	var exceptSubqueries []string
	for range excepts {
		exceptSubqueries = append(exceptSubqueries, fmt.Sprintf("%s?", intersectTmpl))
	}

	include := append(append([]string{}, intersectSubqueries...), groupSubqueries...)

	var query string
	if len(exceptSubqueries) == 0 {
		query = fmt.Sprintf("(%s)", strings.Join(include, " INTERSECT "))
	} else if len(intersectSubqueries) == 0 && len(groupSubqueries) == 0 {
		query = "()"
	} else {
		query = fmt.Sprintf("(SELECT * FROM (%s) EXCEPT SELECT * FROM (%s))",
			strings.Join(include, " INTERSECT "),
			strings.Join(exceptSubqueries, " INTERSECT "))
	}

	for _, name := range intersects {
		args = append(args, name)
	}
	for _, name := range groups {
		args = append(args, name)
	}
	for _, name := range excepts {
		args = append(args, name)
	}

	return query, args, nil
}

// IntersectTag finds every tag that intersects with the files tagged by
// tags. If excludeProvided is set, tags already present in the path are
// left out of the result — the usual case when listing subdirectories.
func (s *Store) IntersectTag(ctx context.Context, tags []tagtype.TagType, excludeProvided bool) ([]Tag, error) {
	return intersectTag(ctx, s.db, tags, excludeProvided)
}

func intersectTag(ctx context.Context, q dbQuerier, tags []tagtype.TagType, excludeProvided bool) ([]Tag, error) {
	if len(tags) == 0 {
		rows, err := q.QueryContext(ctx, `SELECT id, tag_name, mtime, uid, gid, permissions, num_files FROM tags ORDER BY tag_name`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var all []Tag
		for rows.Next() {
			t, err := scanTag(rows)
			if err != nil {
				return nil, err
			}
			all = append(all, *t)
		}
		return all, rows.Err()
	}

	subquery, args, err := intersectionSubquery(ctx, q, tags)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT
		tags.id, tags.tag_name, MAX(file_tag.mtime) as mtime, tags.uid, tags.gid, tags.permissions,
		COUNT(file_tag.tag_id)
	FROM tags
	JOIN file_tag ON tags.id=file_tag.tag_id
	WHERE file_tag.file_id IN %s`, subquery)

	if excludeProvided {
		names := tagtype.CollectRegularNames(tags)
		if len(names) > 0 {
			query += fmt.Sprintf(" AND tags.tag_name NOT IN (%s)", placeholders(len(names)))
			for _, n := range names {
				args = append(args, n)
			}
		}
	}

	query += " GROUP BY tags.id ORDER BY tags.tag_name"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var isect []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		isect = append(isect, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// A trailing Group can surface tags that share a file with a group
	// member but aren't themselves a member — prune those out.
	if len(tags) > 0 {
		if g, ok := tags[len(tags)-1].(tagtype.Group); ok {
			members, err := tagNamesForTagGroup(ctx, q, g.Tag)
			if err != nil {
				return nil, err
			}
			pruned := isect[:0]
			for _, t := range isect {
				if members[t.Name] {
					pruned = append(pruned, t)
				}
			}
			return pruned, nil
		}
	}

	return isect, nil
}

// FilesTaggedWith returns every file tagged with every token in tags.
func (s *Store) FilesTaggedWith(ctx context.Context, tags []tagtype.TagType) ([]TaggedFile, error) {
	return filesTaggedWith(ctx, s.db, tags)
}

func filesTaggedWith(ctx context.Context, q dbQuerier, tags []tagtype.TagType) ([]TaggedFile, error) {
	subquery, args, err := intersectionSubquery(ctx, q, tags)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT
		files.id, inode, device, path, primary_tag, MAX(file_tag.mtime) as mtime,
		file_tag.uid, file_tag.gid, file_tag.permissions, alias_file
	FROM files
	JOIN file_tag ON file_tag.file_id=files.id
	JOIN tags ON file_tag.tag_id=tags.id
	WHERE file_tag.file_id IN %s
	GROUP BY files.id ORDER BY primary_tag`, subquery)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaggedFile
	for rows.Next() {
		var tf TaggedFile
		var mtime float64
		var perms int64
		var alias sql.NullString
		if err := rows.Scan(&tf.ID, &tf.Inode, &tf.Device, &tf.Path, &tf.PrimaryTag, &mtime, &tf.UID, &tf.GID, &perms, &alias); err != nil {
			return nil, err
		}
		tf.Mtime = floatToTime(mtime)
		tf.Permissions = uint32(perms)
		if alias.Valid {
			v := alias.String
			tf.AliasFile = &v
		}
		out = append(out, tf)
	}
	return out, rows.Err()
}

// ContainsFile returns the first file under tags matching pred, or nil.
func (s *Store) ContainsFile(ctx context.Context, tags []tagtype.TagType, pred func(TaggedFile) bool) (*TaggedFile, error) {
	files, err := s.FilesTaggedWith(ctx, tags)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if pred(f) {
			return &f, nil
		}
	}
	return nil, nil
}

// NumFilesForTagGroup counts the distinct files tagged by any member of tg.
func (s *Store) NumFilesForTagGroup(ctx context.Context, tg string) (int64, error) {
	tags, err := s.GetTagsInTagGroup(ctx, tg)
	if err != nil {
		return 0, err
	}
	if len(tags) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	q := fmt.Sprintf(`SELECT COUNT(DISTINCT ft.file_id) FROM file_tag AS ft
		JOIN files AS f ON f.id=ft.file_id
		WHERE ft.tag_id IN (%s)`, placeholders(len(ids)))
	var count int64
	err = s.db.QueryRowContext(ctx, q, argsOf(ids)...).Scan(&count)
	return count, err
}

// NumFilesForIntersection returns how many unique files sit at the
// intersection of the Regular tokens in tags. Negation and Group tokens are
// not applied to the count.
func (s *Store) NumFilesForIntersection(ctx context.Context, tags []tagtype.TagType) (int64, error) {
	regular := tagtype.CollectRegular(tags)
	if len(regular) == 0 {
		return 0, nil
	}
	last := regular[len(regular)-1]
	allButLast := regular[:len(regular)-1]

	lastTag, ok := last.(tagtype.Regular)
	if !ok {
		return 0, nil
	}

	itags, err := s.IntersectTag(ctx, allButLast, true)
	if err != nil {
		return 0, err
	}
	for _, t := range itags {
		if t.Name == lastTag.Tag {
			return t.NumFiles, nil
		}
	}
	return 0, nil
}

// TagGroupIntersections returns every tag group that could exist at the
// intersection of tags.
func (s *Store) TagGroupIntersections(ctx context.Context, tags []tagtype.TagType) ([]TagGroup, error) {
	itags, err := s.IntersectTag(ctx, tags, true)
	if err != nil {
		return nil, err
	}
	sumTagFiles, err := s.NumFilesForIntersection(ctx, tags)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(itags))
	for i, t := range itags {
		ids[i] = t.ID
	}

	groups, err := s.TagGroupsForTags(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var out []TagGroup
	for _, g := range groups {
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		g.NumFiles = sumTagFiles
		out = append(out, g)
	}
	return out, nil
}

func buildPintagRecord(ctx context.Context, s *Store, tags []tagtype.TagType) (string, bool, error) {
	var pinIDs []string
	for _, tt := range tags {
		switch v := tt.(type) {
		case tagtype.Regular:
			id, ok, err := s.GetTagID(ctx, v.Tag)
			if err != nil {
				return "", false, err
			}
			if !ok {
				return "", false, nil
			}
			pinIDs = append(pinIDs, fmt.Sprintf("t%d", id))
		case tagtype.Group:
			id, ok, err := s.GetTagGroupID(ctx, v.Tag)
			if err != nil {
				return "", false, err
			}
			if !ok {
				return "", false, nil
			}
			pinIDs = append(pinIDs, fmt.Sprintf("g%d", id))
		}
	}
	return strings.Join(pinIDs, "/") + "/", true, nil
}

// IsPinned reports whether tags has been explicitly pinned (persisted as
// an empty directory via mkdir).
func (s *Store) IsPinned(ctx context.Context, tags []tagtype.TagType) (bool, error) {
	prefix, ok, err := buildPintagRecord(ctx, s, tags)
	if err != nil || !ok {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM pins WHERE tag_ids LIKE ?`, prefix+"%").Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// PinnedSubdirs finds every tag or tag group pinned immediately beneath
// tags, so an empty-but-pinned directory still appears in a listing.
func (s *Store) PinnedSubdirs(ctx context.Context, tags []tagtype.TagType) ([]TagOrTagGroup, error) {
	prefix, ok, err := buildPintagRecord(ctx, s, tags)
	if err != nil || !ok {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tag_ids FROM pins WHERE tag_ids LIKE ?`, prefix+"%")
	if err != nil {
		return nil, err
	}
	var allTagIDs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return nil, err
		}
		allTagIDs = append(allTagIDs, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []TagOrTagGroup
	for _, tagIDStr := range allTagIDs {
		if len(tagIDStr) < len(prefix) {
			continue
		}
		rest := tagIDStr[len(prefix):]
		chunk := strings.SplitN(rest, "/", 2)[0]
		if chunk == "" {
			continue
		}
		switch chunk[0] {
		case 'g':
			id, err := strconv.ParseInt(chunk[1:], 10, 64)
			if err != nil {
				continue
			}
			g, err := s.GetTagGroupByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if g != nil {
				out = append(out, TagOrTagGroup{Group: g})
			}
		case 't':
			id, err := strconv.ParseInt(chunk[1:], 10, 64)
			if err != nil {
				continue
			}
			t, err := s.GetTagByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if t != nil {
				out = append(out, TagOrTagGroup{Tag: t})
			}
		}
	}
	return out, nil
}
