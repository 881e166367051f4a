package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediavault/models"
	"mediavault/utils"
)

const (
	foldersCollection     = "folders"
	permissionsCollection = "permissions"
	usersCollection       = "users"
	groupsCollection      = "groups"
)

func NewMongoStores(db *mongo.Database) *Stores {
	return &Stores{
		Folders:     NewMongoFolderStore(db),
		Permissions: NewMongoPermissionStore(db),
		Users:       NewMongoUserStore(db),
		Groups:      NewMongoGroupStore(db),
	}
}

// EnsureIndexes creates the indexes the stores rely on. The partial unique
// indexes on permissions keep one entry per (resource, principal).
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	folderIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "path", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "parent_id", Value: 1}},
		},
	}
	if _, err := db.Collection(foldersCollection).Indexes().CreateMany(ctx, folderIndexes); err != nil {
		return fmt.Errorf("failed to create folder indexes: %w", err)
	}

	permissionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"principal_type": models.PrincipalUser}),
		},
		{
			Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "group_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"principal_type": models.PrincipalGroup}),
		},
		{
			Keys: bson.D{{Key: "group_id", Value: 1}},
		},
	}
	if _, err := db.Collection(permissionsCollection).Indexes().CreateMany(ctx, permissionIndexes); err != nil {
		return fmt.Errorf("failed to create permission indexes: %w", err)
	}

	groupIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection(groupsCollection).Indexes().CreateMany(ctx, groupIndexes); err != nil {
		return fmt.Errorf("failed to create group indexes: %w", err)
	}

	userIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "groups", Value: 1}},
		},
	}
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	return nil
}

// descendantFilter matches strict descendants of path. The path is quoted so
// folder names are never read as pattern syntax.
func descendantFilter(path string) bson.M {
	if path == "" {
		return bson.M{"path": bson.M{"$ne": ""}}
	}
	return bson.M{"path": bson.M{"$regex": "^" + regexp.QuoteMeta(path+"/")}}
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, what string) (*T, error) {
	var doc T
	err := coll.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%s: %w", what, utils.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &doc, nil
}

type MongoFolderStore struct {
	folderCollection *mongo.Collection
}

func NewMongoFolderStore(db *mongo.Database) *MongoFolderStore {
	return &MongoFolderStore{folderCollection: db.Collection(foldersCollection)}
}

func (s *MongoFolderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error) {
	return findOne[models.Folder](ctx, s.folderCollection, bson.M{"_id": id}, "folder "+id.Hex())
}

func (s *MongoFolderStore) FindByPath(ctx context.Context, path string) (*models.Folder, error) {
	return findOne[models.Folder](ctx, s.folderCollection, bson.M{"path": path}, fmt.Sprintf("folder %q", path))
}

func (s *MongoFolderStore) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Folder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return findAll[models.Folder](ctx, s.folderCollection, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *MongoFolderStore) FindByPaths(ctx context.Context, paths []string) ([]models.Folder, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	return findAll[models.Folder](ctx, s.folderCollection, bson.M{"path": bson.M{"$in": paths}})
}

func (s *MongoFolderStore) FindTree(ctx context.Context, path string) ([]models.Folder, error) {
	filter := bson.M{"$or": []bson.M{{"path": path}, descendantFilter(path)}}
	return findAll[models.Folder](ctx, s.folderCollection, filter, options.Find().SetSort(bson.M{"path": 1}))
}

func (s *MongoFolderStore) All(ctx context.Context) ([]models.Folder, error) {
	return findAll[models.Folder](ctx, s.folderCollection, bson.M{}, options.Find().SetSort(bson.M{"path": 1}))
}

func (s *MongoFolderStore) Insert(ctx context.Context, folder *models.Folder) error {
	if folder.ID.IsZero() {
		folder.ID = primitive.NewObjectID()
	}
	if folder.AllowedUsers == nil {
		folder.AllowedUsers = []primitive.ObjectID{}
	}

	_, err := s.folderCollection.InsertOne(ctx, folder)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("folder %q: %w", folder.Path, utils.ErrConflict)
	} else if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

// InsertMany is unordered; rows that collide with an existing path are
// skipped and the rest are kept.
func (s *MongoFolderStore) InsertMany(ctx context.Context, folders []models.Folder) (InsertResult, error) {
	var result InsertResult
	if len(folders) == 0 {
		return result, nil
	}

	docs := make([]interface{}, len(folders))
	for i := range folders {
		if folders[i].ID.IsZero() {
			folders[i].ID = primitive.NewObjectID()
		}
		if folders[i].AllowedUsers == nil {
			folders[i].AllowedUsers = []primitive.ObjectID{}
		}
		docs[i] = folders[i]
	}

	_, err := s.folderCollection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		result.Inserted = len(folders)
		return result, nil
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && bulkErr.WriteConcernError == nil && allDuplicates(bulkErr.WriteErrors) {
		for _, we := range bulkErr.WriteErrors {
			if we.Index >= 0 && we.Index < len(folders) {
				result.Skipped = append(result.Skipped, folders[we.Index].Path)
			}
		}
		result.Inserted = len(folders) - len(bulkErr.WriteErrors)
		utils.LogDebug("Skipped %d folders already registered", len(bulkErr.WriteErrors))
		return result, nil
	}
	return result, fmt.Errorf("failed to insert folders: %w", err)
}

func allDuplicates(writeErrors []mongo.BulkWriteError) bool {
	for _, we := range writeErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return true
}

func (s *MongoFolderStore) Reparent(ctx context.Context, moves []Reparent) (int64, error) {
	if len(moves) == 0 {
		return 0, nil
	}

	now := time.Now()
	bulkOps := make([]mongo.WriteModel, 0, len(moves))
	for _, move := range moves {
		updateModel := mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": move.ID}).
			SetUpdate(bson.M{"$set": bson.M{
				"parent_id":  move.ParentID,
				"updated_at": now,
			}})
		bulkOps = append(bulkOps, updateModel)
	}

	result, err := s.folderCollection.BulkWrite(ctx, bulkOps, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to reparent folders: %w", err)
	}
	return result.MatchedCount, nil
}

func (s *MongoFolderStore) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := s.folderCollection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete folders: %w", err)
	}
	return result.DeletedCount, nil
}

// UpdateAccess applies one update to every selected folder in a single
// UpdateMany.
func (s *MongoFolderStore) UpdateAccess(ctx context.Context, selector AccessSelector, update AccessUpdate) (int64, error) {
	if selector.Empty() {
		return 0, nil
	}

	conditions := make([]bson.M, 0, len(selector.DescendantsOf)+1)
	if len(selector.IDs) > 0 {
		conditions = append(conditions, bson.M{"_id": bson.M{"$in": selector.IDs}})
	}
	for _, ancestor := range selector.DescendantsOf {
		conditions = append(conditions, descendantFilter(ancestor))
	}

	set := bson.M{"updated_at": time.Now()}
	if update.IsPublic != nil {
		set["is_public"] = *update.IsPublic
	}
	if update.AllowedUsers != nil {
		allowed := *update.AllowedUsers
		if allowed == nil {
			allowed = []primitive.ObjectID{}
		}
		set["allowed_users"] = allowed
	}

	result, err := s.folderCollection.UpdateMany(ctx, bson.M{"$or": conditions}, bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("failed to update folder access: %w", err)
	}
	return result.MatchedCount, nil
}

type MongoPermissionStore struct {
	permissionCollection *mongo.Collection
}

func NewMongoPermissionStore(db *mongo.Database) *MongoPermissionStore {
	return &MongoPermissionStore{permissionCollection: db.Collection(permissionsCollection)}
}

func principalField(principalType models.PrincipalType) string {
	if principalType == models.PrincipalGroup {
		return "group_id"
	}
	return "user_id"
}

func (s *MongoPermissionStore) FindByResource(ctx context.Context, resourceID primitive.ObjectID) ([]models.PermissionEntry, error) {
	return findAll[models.PermissionEntry](ctx, s.permissionCollection, bson.M{"resource_id": resourceID},
		options.Find().SetSort(bson.M{"granted_at": 1}))
}

func (s *MongoPermissionStore) FindByResources(ctx context.Context, resourceIDs []primitive.ObjectID) ([]models.PermissionEntry, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	return findAll[models.PermissionEntry](ctx, s.permissionCollection, bson.M{"resource_id": bson.M{"$in": resourceIDs}})
}

func (s *MongoPermissionStore) FindByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.PermissionEntry, error) {
	return findAll[models.PermissionEntry](ctx, s.permissionCollection, bson.M{
		"principal_type": models.PrincipalGroup,
		"group_id":       groupID,
	})
}

// Upsert is keyed on the resource and the principal field matching the
// entry's type. A new row takes the key fields from the filter.
func (s *MongoPermissionStore) Upsert(ctx context.Context, entry models.PermissionEntry) error {
	field := principalField(entry.PrincipalType)
	filter := bson.M{
		"resource_id":    entry.ResourceID,
		"principal_type": entry.PrincipalType,
		field:            entry.Principal(),
	}
	update := bson.M{
		"$set": bson.M{
			"access":     entry.Access,
			"granted_by": entry.GrantedBy,
			"granted_at": entry.GrantedAt,
		},
	}

	_, err := s.permissionCollection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	return nil
}

func (s *MongoPermissionStore) Delete(ctx context.Context, resourceID primitive.ObjectID, principalType models.PrincipalType, principalID primitive.ObjectID) (int64, error) {
	result, err := s.permissionCollection.DeleteOne(ctx, bson.M{
		"resource_id":                  resourceID,
		"principal_type":               principalType,
		principalField(principalType): principalID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete permission: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoPermissionStore) DeleteByResources(ctx context.Context, resourceIDs []primitive.ObjectID) (int64, error) {
	if len(resourceIDs) == 0 {
		return 0, nil
	}
	result, err := s.permissionCollection.DeleteMany(ctx, bson.M{"resource_id": bson.M{"$in": resourceIDs}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete permissions: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoPermissionStore) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	result, err := s.permissionCollection.DeleteMany(ctx, bson.M{
		"principal_type": models.PrincipalGroup,
		"group_id":       groupID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete group permissions: %w", err)
	}
	return result.DeletedCount, nil
}

type MongoUserStore struct {
	userCollection *mongo.Collection
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{userCollection: db.Collection(usersCollection)}
}

func (s *MongoUserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return findOne[models.User](ctx, s.userCollection, bson.M{"_id": id}, "user "+id.Hex())
}

func (s *MongoUserStore) List(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](ctx, s.userCollection, bson.M{}, options.Find().SetSort(bson.M{"name": 1}))
}

func (s *MongoUserStore) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.Groups == nil {
		user.Groups = []primitive.ObjectID{}
	}
	_, err := s.userCollection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("user %s: %w", user.ID.Hex(), utils.ErrConflict)
	} else if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *MongoUserStore) updateOne(ctx context.Context, userID primitive.ObjectID, update bson.M) error {
	result, err := s.userCollection.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", userID.Hex(), utils.ErrNotFound)
	}
	return nil
}

func (s *MongoUserStore) AddGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	return s.updateOne(ctx, userID, bson.M{
		"$addToSet": bson.M{"groups": groupID},
		"$set":      bson.M{"updated_at": time.Now()},
	})
}

func (s *MongoUserStore) RemoveGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	return s.updateOne(ctx, userID, bson.M{
		"$pull": bson.M{"groups": groupID},
		"$set":  bson.M{"updated_at": time.Now()},
	})
}

func (s *MongoUserStore) RemoveGroupFromAll(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	result, err := s.userCollection.UpdateMany(ctx,
		bson.M{"groups": groupID},
		bson.M{
			"$pull": bson.M{"groups": groupID},
			"$set":  bson.M{"updated_at": time.Now()},
		})
	if err != nil {
		return 0, fmt.Errorf("failed to remove group from users: %w", err)
	}
	return result.ModifiedCount, nil
}

type MongoGroupStore struct {
	groupCollection *mongo.Collection
}

func NewMongoGroupStore(db *mongo.Database) *MongoGroupStore {
	return &MongoGroupStore{groupCollection: db.Collection(groupsCollection)}
}

func (s *MongoGroupStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	return findOne[models.Group](ctx, s.groupCollection, bson.M{"_id": id}, "group "+id.Hex())
}

func (s *MongoGroupStore) List(ctx context.Context) ([]models.Group, error) {
	return findAll[models.Group](ctx, s.groupCollection, bson.M{}, options.Find().SetSort(bson.M{"name": 1}))
}

func (s *MongoGroupStore) Create(ctx context.Context, group *models.Group) error {
	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}
	if group.Members == nil {
		group.Members = []primitive.ObjectID{}
	}
	_, err := s.groupCollection.InsertOne(ctx, group)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("group %q: %w", group.Name, utils.ErrConflict)
	} else if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (s *MongoGroupStore) updateOne(ctx context.Context, groupID primitive.ObjectID, update bson.M) error {
	result, err := s.groupCollection.UpdateOne(ctx, bson.M{"_id": groupID}, update)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("group %s: %w", groupID.Hex(), utils.ErrNotFound)
	}
	return nil
}

func (s *MongoGroupStore) AddMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	return s.updateOne(ctx, groupID, bson.M{
		"$addToSet": bson.M{"members": userID},
		"$set":      bson.M{"updated_at": time.Now()},
	})
}

func (s *MongoGroupStore) RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	return s.updateOne(ctx, groupID, bson.M{
		"$pull": bson.M{"members": userID},
		"$set":  bson.M{"updated_at": time.Now()},
	})
}

func (s *MongoGroupStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.groupCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("group %s: %w", id.Hex(), utils.ErrNotFound)
	}
	return nil
}
