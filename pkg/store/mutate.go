package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/supertagfs/supertag/pkg/tagtype"
)

// Perms is the read/write/execute bits persisted alongside a row, kept as
// a plain uint32 here — the octal-math and umask-application helpers that
// interpret it live in pkg/settings, mirroring the split the original
// draws between storage (sql/types.rs) and interpretation
// (common/types/file_perms.rs).
type Perms = uint32

// EnsureTag inserts tag if it doesn't already exist, or bumps its mtime if
// it does. Returns the authoritative name (normally just tag) and id.
func (s *Store) EnsureTag(ctx context.Context, tx *sql.Tx, tag string, uid, gid uint32, perms Perms, now float64) (string, int64, error) {
	var id int64
	var name string
	err := tx.QueryRowContext(ctx, `SELECT id, tag_name FROM tags WHERE tag_name=?`, tag).Scan(&id, &name)
	if err == nil {
		if err := s.updateTagMtime(ctx, tx, name, now); err != nil {
			return "", 0, err
		}
		return name, id, nil
	}
	if err != sql.ErrNoRows {
		return "", 0, err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tags (tag_name, ts, mtime, uid, gid, permissions) VALUES (?, ?, ?, ?, ?, ?)`,
		tag, now, now, uid, gid, perms)
	if err != nil {
		return "", 0, err
	}

	var newID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE tag_name=?`, tag).Scan(&newID); err != nil {
		return "", 0, err
	}

	if err := s.updateRootMtimeTx(ctx, tx, now); err != nil {
		return "", 0, err
	}
	return tag, newID, nil
}

// EnsureTagGroup inserts name as a tag group if it doesn't already exist,
// or bumps its mtime if it does.
func (s *Store) EnsureTagGroup(ctx context.Context, tx *sql.Tx, name string, uid, gid uint32, perms Perms, now float64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM tag_groups WHERE name=?`, name).Scan(&id)
	if err == nil {
		return s.updateTagGroupMtime(ctx, tx, name, now)
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tag_groups (name, ts, mtime, uid, gid, permissions) VALUES (?, ?, ?, ?, ?, ?)`,
		name, now, now, uid, gid, perms)
	if err != nil {
		return err
	}
	return s.updateRootMtimeTx(ctx, tx, now)
}

func (s *Store) updateTagMtime(ctx context.Context, tx *sql.Tx, tag string, now float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE tags SET mtime=? WHERE tag_name=?`, now, tag)
	return err
}

func (s *Store) updateTagGroupMtime(ctx context.Context, tx *sql.Tx, name string, now float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE tag_groups SET mtime=? WHERE name=?`, now, name)
	return err
}

func (s *Store) updateRootMtimeTx(ctx context.Context, tx *sql.Tx, now float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE supertag_meta SET root_mtime=?`, now)
	return err
}

// LinkFileToTag attaches tag to the file identified by device/inode. A
// pre-existing association is left alone (the original just logs and
// moves on).
func (s *Store) LinkFileToTag(ctx context.Context, tx *sql.Tx, device, inode uint64, tag string, uid, gid uint32, perms Perms, now float64) error {
	var fileID, tagID int64
	err := tx.QueryRowContext(ctx, `SELECT file_tag.file_id, file_tag.tag_id FROM file_tag
		JOIN files ON files.id = file_tag.file_id
		JOIN tags ON tags.id = file_tag.tag_id
		WHERE files.inode = ? AND files.device = ? AND tags.tag_name = ?`,
		inode, device, tag).Scan(&fileID, &tagID)

	switch err {
	case nil:
		log.WithField("tag", tag).Debug("file-tag association already exists, skipping")
	case sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `UPDATE tags SET num_files = num_files+1 WHERE tag_name=?`, tag); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO file_tag (file_id, tag_id, ts, mtime, uid, gid, permissions)
			VALUES (
				(SELECT id FROM files WHERE device = ? AND inode = ?),
				(SELECT id FROM tags WHERE tag_name = ?),
				?, ?, ?, ?, ?
			)`, device, inode, tag, now, now, uid, gid, perms)
		if err != nil {
			return err
		}
	default:
		return err
	}

	if err := s.updateTagMtime(ctx, tx, tag, now); err != nil {
		return err
	}
	return s.updateRootMtimeTx(ctx, tx, now)
}

// AddFile creates (or finds) the file row for device/inode at path, then
// links it to every tag in tags under primaryTag.
func (s *Store) AddFile(ctx context.Context, tx *sql.Tx, device, inode uint64, path, primaryTag string, tags []string, uid, gid uint32, dirPerms, filePerms Perms, now float64, aliasFile *string) ([]TaggedFile, error) {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO files (device, inode, path, primary_tag, ts, mtime, alias_file)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, device, inode, path, primaryTag, now, now, aliasFile)
	if err != nil {
		return nil, err
	}

	var tagged []TaggedFile
	for _, tag := range tags {
		authTag, _, err := s.EnsureTag(ctx, tx, tag, uid, gid, dirPerms, now)
		if err != nil {
			return nil, err
		}
		if err := s.LinkFileToTag(ctx, tx, device, inode, authTag, uid, gid, filePerms, now); err != nil {
			return nil, err
		}
		tagged = append(tagged, TaggedFile{
			Inode:       inode,
			Device:      device,
			Path:        path,
			PrimaryTag:  primaryTag,
			Mtime:       floatToTime(now),
			UID:         uid,
			GID:         gid,
			Permissions: filePerms,
			AliasFile:   aliasFile,
		})
	}

	if err := s.updateRootMtimeTx(ctx, tx, now); err != nil {
		return nil, err
	}
	return tagged, nil
}

// PurgeDeviceFile drops every file_tag row and the files row for
// device/inode, decrementing num_files on each affected tag.
func (s *Store) PurgeDeviceFile(ctx context.Context, tx *sql.Tx, device, inode uint64, now float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE tags SET num_files=num_files-1 WHERE id IN (
		SELECT tag_id FROM file_tag
		JOIN files ON files.id=file_tag.file_id
		WHERE files.device=? AND files.inode=?
	)`, device, inode)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE device=? AND inode=?`, device, inode); err != nil {
		return err
	}
	return s.updateRootMtimeTx(ctx, tx, now)
}

// PurgePath is PurgeDeviceFile's path-keyed counterpart, used when the
// alias/symlink side of a macOS file has gone stale.
func (s *Store) PurgePath(ctx context.Context, tx *sql.Tx, path string, now float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE tags SET num_files=num_files-1 WHERE id IN (
		SELECT tag_id FROM file_tag
		JOIN files ON files.id=file_tag.file_id
		WHERE files.path=?
	)`, path)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path=?`, path); err != nil {
		return err
	}
	return s.updateRootMtimeTx(ctx, tx, now)
}

// RemoveDeviceFile detaches device/inode from each of tags, returning the
// file_tag rowids removed.
func (s *Store) RemoveDeviceFile(ctx context.Context, tx *sql.Tx, device, inode uint64, tags []string, now float64) ([]int64, error) {
	var fileID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE device=? AND inode=?`, device, inode).Scan(&fileID); err != nil {
		return nil, err
	}

	var allRemoved []int64
	for _, tag := range tags {
		rows, err := tx.QueryContext(ctx, `SELECT rowid FROM file_tag WHERE file_id=? AND tag_id=(SELECT id FROM tags WHERE tag_name=?)`, fileID, tag)
		if err != nil {
			return nil, err
		}
		var removed []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			removed = append(removed, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		allRemoved = append(allRemoved, removed...)

		if _, err := tx.ExecContext(ctx, `DELETE FROM file_tag WHERE file_id=? AND tag_id=(SELECT id FROM tags WHERE tag_name=?)`, fileID, tag); err != nil {
			return nil, err
		}

		if len(removed) > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE tags SET num_files = num_files-? WHERE tag_name=?`, len(removed), tag); err != nil {
				return nil, err
			}
		}
	}
	return allRemoved, s.updateRootMtimeTx(ctx, tx, now)
}

// RemoveLinks detaches the file whose primary tag is primaryTag from
// every Regular token in tags — the symlink-delete path.
func (s *Store) RemoveLinks(ctx context.Context, tx *sql.Tx, primaryTag string, tags []tagtype.TagType, now float64) ([]int64, error) {
	var allRemoved []int64

	tf, err := s.containsFileTx(ctx, tx, tags, func(tf TaggedFile) bool { return tf.PrimaryTag == primaryTag })
	if err != nil {
		return nil, err
	}
	if tf == nil {
		log.WithField("primaryTag", primaryTag).Warn("couldn't find symlink to remove")
		return allRemoved, nil
	}

	for _, name := range tagtype.CollectRegularNames(tags) {
		rows, err := tx.QueryContext(ctx, `SELECT rowid FROM file_tag WHERE file_id=? AND tag_id=(SELECT id FROM tags WHERE tag_name=?)`, tf.ID, name)
		if err != nil {
			return nil, err
		}
		var removed []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			removed = append(removed, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		allRemoved = append(allRemoved, removed...)

		res, err := tx.ExecContext(ctx, `DELETE FROM file_tag WHERE file_id=? AND tag_id=(SELECT id FROM tags WHERE tag_name=?)`, tf.ID, name)
		if err != nil {
			return nil, err
		}
		changed, _ := res.RowsAffected()
		if changed > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE tags SET num_files = num_files-? WHERE tag_name=?`, changed, name); err != nil {
				return nil, err
			}
		}
	}

	return allRemoved, s.updateRootMtimeTx(ctx, tx, now)
}

// containsFileTx is ContainsFile's tx-bound twin, for use from inside a
// mutation that must see its own uncommitted writes.
func (s *Store) containsFileTx(ctx context.Context, tx *sql.Tx, tags []tagtype.TagType, pred func(TaggedFile) bool) (*TaggedFile, error) {
	files, err := filesTaggedWith(ctx, tx, tags)
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

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// RemoveTagFromIntersection unlinks tag from every file at intersect,
// chunking deletes so a large result set doesn't overflow SQLite's
// expression-tree limit.
func (s *Store) RemoveTagFromIntersection(ctx context.Context, tx *sql.Tx, tag string, intersect []tagtype.TagType, now float64) ([]TaggedFile, error) {
	files, err := filesTaggedWith(ctx, tx, intersect)
	if err != nil {
		return nil, err
	}
	var tagID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE tag_name=?`, tag).Scan(&tagID); err != nil {
		return nil, err
	}

	const chunkSize = 500
	var totalRemoved int64
	for i := 0; i < len(files); i += chunkSize {
		end := i + chunkSize
		if end > len(files) {
			end = len(files)
		}
		chunk := files[i:end]
		ids := make([]int64, len(chunk))
		for j, f := range chunk {
			ids[j] = f.ID
		}

		q := fmt.Sprintf(`DELETE FROM file_tag WHERE file_id IN (%s) AND tag_id=?`, placeholders(len(ids)))
		args := append(argsOf(ids), tagID)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		removed, _ := res.RowsAffected()
		totalRemoved += removed

		if _, err := tx.ExecContext(ctx, `UPDATE tags SET num_files = num_files-? WHERE id=?`, removed, tagID); err != nil {
			return nil, err
		}
	}

	return files, s.updateRootMtimeTx(ctx, tx, now)
}

// RemoveTagGroupFromIntersection unlinks group from the tag group
// association for every tag at the intersection of intersect.
func (s *Store) RemoveTagGroupFromIntersection(ctx context.Context, tx *sql.Tx, group string, intersect []tagtype.TagType) error {
	var tgID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM tag_groups WHERE name=?`, group).Scan(&tgID); err != nil {
		return err
	}

	isectTags, err := intersectTag(ctx, tx, intersect, true)
	if err != nil {
		return err
	}

	const chunkSize = 500
	for i := 0; i < len(isectTags); i += chunkSize {
		end := i + chunkSize
		if end > len(isectTags) {
			end = len(isectTags)
		}
		chunk := isectTags[i:end]
		ids := make([]int64, len(chunk))
		for j, t := range chunk {
			ids[j] = t.ID
		}
		q := fmt.Sprintf(`DELETE FROM tag_group_tag WHERE tag_id IN (%s) AND tg_id=?`, placeholders(len(ids)))
		args := append(argsOf(ids), tgID)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTag deletes tag outright if immediate, otherwise soft-deletes it
// (stamps rm_time, drops its file associations) for later reaping.
func (s *Store) RemoveTag(ctx context.Context, tx *sql.Tx, tag string, now float64, immediate bool) error {
	if immediate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE tag_name=?`, tag); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE tags SET rm_time=? WHERE tag_name=?`, now, tag); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_tag WHERE file_tag.tag_id=(SELECT id FROM tags WHERE tag_name=?)`, tag); err != nil {
			return err
		}
	}
	return s.updateRootMtimeTx(ctx, tx, now)
}

// RemoveTagGroup deletes a tag group outright. Its tag_group_tag membership
// rows cascade via the table's foreign key; the member tags themselves are
// kept.
func (s *Store) RemoveTagGroup(ctx context.Context, tx *sql.Tx, group string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tag_groups WHERE name=?`, group); err != nil {
		return err
	}
	return s.updateRootMtimeTx(ctx, tx, NowSecs())
}

// RenameTag renames oldTag to newTag in place.
func (s *Store) RenameTag(ctx context.Context, tx *sql.Tx, oldTag, newTag string, now float64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tags SET tag_name=? WHERE tag_name=?`, newTag, oldTag); err != nil {
		return err
	}
	if err := s.updateTagMtime(ctx, tx, newTag, now); err != nil {
		return err
	}
	return s.updateRootMtimeTx(ctx, tx, now)
}

// RenameTagGroup renames oldName to newName in place.
func (s *Store) RenameTagGroup(ctx context.Context, tx *sql.Tx, oldName, newName string, now float64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tag_groups SET name=? WHERE name=?`, newName, oldName); err != nil {
		return err
	}
	if err := s.updateTagGroupMtime(ctx, tx, newName, now); err != nil {
		return err
	}
	return s.updateRootMtimeTx(ctx, tx, now)
}

// MergeTags takes everything tagged with the intersection of srcTags,
// strips srcTag from it, and retags the result with every tag in dstTags.
// This is the rename-a-directory-across-tags path: `mv a/b c/d` when b
// and d name different intersections.
func (s *Store) MergeTags(ctx context.Context, tx *sql.Tx, srcTag string, srcTags []tagtype.TagType, dstTags []string, now float64) error {
	removed, err := s.RemoveTagFromIntersection(ctx, tx, srcTag, srcTags, now)
	if err != nil {
		return err
	}

	for _, newTag := range dstTags {
		for _, tf := range removed {
			_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO file_tag (file_id, tag_id, ts, mtime, uid, gid, permissions)
				VALUES (?, (SELECT id from tags WHERE tag_name=?), ?, ?, ?, ?, ?)`,
				tf.ID, newTag, now, now, tf.UID, tf.GID, tf.Permissions)
			if err != nil {
				return err
			}
		}
		if err := s.updateTagMtime(ctx, tx, newTag, now); err != nil {
			return err
		}
	}

	return s.updateRootMtimeTx(ctx, tx, now)
}

// RenameFile changes the primary tag (on-disk display name) of the file
// at device/inode, used for a plain `mv` within the same intersection.
func (s *Store) RenameFile(ctx context.Context, tx *sql.Tx, device, inode uint64, newName string, now float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE files SET primary_tag=?, mtime=? WHERE device=? AND inode=?`, newName, now, device, inode)
	if err != nil {
		return err
	}
	return s.updateRootMtimeTx(ctx, tx, now)
}

// PinTags persists tags as an always-present path, even once its last
// file is untagged. If the path ends in (Group, Regular), the tag is also
// added as a member of that group — the "mkdir inside a tag group creates
// a grouped tag" behavior.
func (s *Store) PinTags(ctx context.Context, tx *sql.Tx, tags []tagtype.TagType, uid, gid uint32, perms Perms, now float64) error {
	var pinIDs []string
	for _, tt := range tags {
		switch v := tt.(type) {
		case tagtype.Regular:
			_, id, err := s.EnsureTag(ctx, tx, v.Tag, uid, gid, perms, now)
			if err != nil {
				return err
			}
			pinIDs = append(pinIDs, fmt.Sprintf("t%d", id))
		case tagtype.Group:
			if err := s.EnsureTagGroup(ctx, tx, v.Tag, uid, gid, perms, now); err != nil {
				return err
			}
			var groupID int64
			if err := tx.QueryRowContext(ctx, `SELECT id FROM tag_groups WHERE name=?`, v.Tag).Scan(&groupID); err != nil {
				return err
			}
			pinIDs = append(pinIDs, fmt.Sprintf("g%d", groupID))
		default:
			return fmt.Errorf("cannot pin anything except a regular tag or a tag group")
		}
	}

	if len(tags) >= 2 {
		last, lastOK := tags[len(tags)-1].(tagtype.Regular)
		secondToLast, groupOK := tags[len(tags)-2].(tagtype.Group)
		if lastOK && groupOK {
			if err := s.addTagToGroup(ctx, tx, last.Tag, secondToLast.Tag, uid, gid, perms, now); err != nil {
				return err
			}
		}
	}

	joined := join(pinIDs, "/") + "/"
	_, err := tx.ExecContext(ctx, `INSERT INTO pins (tag_ids) VALUES (?)`, joined)
	return err
}

func (s *Store) addTagToGroup(ctx context.Context, tx *sql.Tx, tag, tagGroup string, uid, gid uint32, perms Perms, now float64) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tag_group_tag (tg_id, tag_id, ts, mtime, uid, gid, permissions)
		VALUES (
			(SELECT id FROM tag_groups WHERE name=?),
			(SELECT id FROM tags WHERE tag_name=?),
			?, ?, ?, ?, ?
		)`, tagGroup, tag, now, now, uid, gid, perms)
	return err
}

// AddTagToGroup is the exported form of addTagToGroup, used directly by
// the mutation algebra when moving a bare tag into an existing group.
func (s *Store) AddTagToGroup(ctx context.Context, tx *sql.Tx, tag, tagGroup string, uid, gid uint32, perms Perms, now float64) error {
	return s.addTagToGroup(ctx, tx, tag, tagGroup, uid, gid, perms, now)
}
